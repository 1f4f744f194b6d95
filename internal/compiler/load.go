package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/crmsignal/internal/canon"
)

// LoadMode controls how errors are handled during rule loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// RuleSet is a validated, ordered rule set.
type RuleSet struct {
	Rules []canon.Rule

	// Hash fingerprints Rules (canon.RuleSetHash).
	Hash string

	// FileCount is the number of CUE files read; zero for CompileString.
	FileCount int
}

// LoadDir loads every .cue file of dir as one CUE instance and compiles
// the rules under "rule". All returned errors are *ConfigurationError.
// The rule set is nil whenever errors are returned.
func LoadDir(dir string, mode LoadMode) (*RuleSet, []error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, []error{loadError("rules directory not accessible: %v", err)}
	}
	if !info.IsDir() {
		return nil, []error{loadError("not a directory: %s", dir)}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{loadError("scanning %s: %v", dir, err)}
	}
	if len(files) == 0 {
		return nil, []error{loadError("no CUE files found in %s", dir)}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{loadError("no CUE instances loaded")}
	}
	if inst := instances[0]; inst.Err != nil {
		return nil, []error{loadError("loading CUE files: %v", inst.Err)}
	}

	value := cuecontext.New().BuildInstance(instances[0])
	set, errs := compileValue(value, mode)
	if set != nil {
		set.FileCount = len(files)
	}
	return set, errs
}

// CompileString compiles rules from CUE source text.
func CompileString(filename, src string, mode LoadMode) (*RuleSet, []error) {
	value := cuecontext.New().CompileString(src, cue.Filename(filename))
	return compileValue(value, mode)
}

func compileValue(value cue.Value, mode LoadMode) (*RuleSet, []error) {
	if err := value.Err(); err != nil {
		return nil, []error{convertCompileError("", formatCUEError("cue", err))}
	}

	rulesVal := value.LookupPath(cue.ParsePath("rule"))
	if !rulesVal.Exists() {
		return nil, []error{loadError("no rules found: expected a top-level \"rule\" struct")}
	}
	iter, err := rulesVal.Fields()
	if err != nil {
		return nil, []error{convertCompileError("", formatCUEError("rule", err))}
	}

	var (
		rules []canon.Rule
		errs  []error
	)
	for iter.Next() {
		id := iter.Selector().Unquoted()
		rule, err := CompileRule(iter.Value())
		if err != nil {
			errs = append(errs, convertCompileError(id, err))
			if mode == LoadModeFailFast {
				return nil, errs
			}
			continue
		}
		for _, verr := range Validate(rule) {
			if !verr.Pos.IsValid() {
				verr.Pos = iter.Value().Pos()
			}
			errs = append(errs, verr)
			if mode == LoadModeFailFast {
				return nil, errs
			}
		}
		rules = append(rules, *rule)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	if len(rules) == 0 {
		return nil, []error{loadError("no rules found: \"rule\" is empty")}
	}

	// CUE unifies repeated labels, so duplicates only come from merged sets.
	for _, verr := range ValidateSet(rules) {
		if verr.Code == ErrDuplicateRuleID {
			errs = append(errs, verr)
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	hash, err := canon.RuleSetHash(rules)
	if err != nil {
		return nil, []error{loadError("hashing rules: %v", err)}
	}
	return &RuleSet{Rules: rules, Hash: hash}, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func loadError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{
		Field:   "rules",
		Message: fmt.Sprintf(format, args...),
		Code:    ErrLoadFailed,
	}
}

// convertCompileError converts a decoding error into a ConfigurationError,
// keeping the CUE position.
func convertCompileError(ruleID string, err error) *ConfigurationError {
	var ce *CompileError
	if errors.As(err, &ce) {
		code := ErrMalformedRule
		if ruleID == "" {
			code = ErrLoadFailed
		}
		return &ConfigurationError{RuleID: ruleID, Field: ce.Field, Message: ce.Message, Code: code, Pos: ce.Pos}
	}
	return &ConfigurationError{RuleID: ruleID, Field: "rule", Message: err.Error(), Code: ErrMalformedRule}
}
