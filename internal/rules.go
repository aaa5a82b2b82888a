package internal

import (
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/PaesslerAG/jsonpath"
	"gopkg.in/yaml.v3"
)

// EmitList is one or more topics. In YAML it may be a single string or a list.
type EmitList []string

// UnmarshalYAML accepts a scalar or a sequence.
func (e *EmitList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*e = EmitList{value.Value}
		return nil
	case yaml.SequenceNode:
		var topics []string
		if err := value.Decode(&topics); err != nil {
			return err
		}
		*e = EmitList(topics)
		return nil
	default:
		return fmt.Errorf("emit must be a string or a list of strings")
	}
}

// Rule publishes to Emit when the govaluate expression When holds for a push.
//
// Top-level fields are plain variables (branch, issue_number, ref, after); nested fields are
// reached with bracketed flattened names such as [repository.full_name], or with JSONPath
// such as $.head_commit.author.username.
type Rule struct {
	When    string   `yaml:"when"`
	Emit    EmitList `yaml:"emit"`
	Drivers []string `yaml:"drivers"`
}

// RuleMatch is one topic to publish to, restricted to Drivers when set.
type RuleMatch struct {
	Topic   string
	Drivers []string
}

type compiledRule struct {
	when    string
	emit    EmitList
	drivers []string
	expr    *govaluate.EvaluableExpression
	// paths maps generated parameter names to the JSONPath they stand for.
	paths map[string]string
}

// RuleEngine evaluates routing rules against published events.
type RuleEngine struct {
	rules  []compiledRule
	strict bool
	logger *log.Logger
}

var jsonPathPattern = regexp.MustCompile(`\$(?:\.[A-Za-z_][A-Za-z0-9_-]*|\[[0-9]+\])+`)

// NewRuleEngine compiles cfg.Rules.
func NewRuleEngine(cfg RulesConfig) (*RuleEngine, error) {
	rules := make([]compiledRule, 0, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		expression, paths := rewriteJSONPaths(rule.When)
		expr, err := govaluate.NewEvaluableExpression(expression)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, compiledRule{
			when:    rule.When,
			emit:    rule.Emit,
			drivers: rule.Drivers,
			expr:    expr,
			paths:   paths,
		})
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &RuleEngine{rules: rules, strict: cfg.Strict, logger: logger}, nil
}

// Evaluate returns the topics event should be published to.
func (r *RuleEngine) Evaluate(event Event) []RuleMatch {
	if r == nil {
		return nil
	}
	return r.EvaluateWithLogger(event, r.logger)
}

// EvaluateWithLogger is Evaluate logging to logger.
func (r *RuleEngine) EvaluateWithLogger(event Event, logger *log.Logger) []RuleMatch {
	if r == nil || len(r.rules) == 0 {
		return nil
	}
	if logger == nil {
		logger = r.logger
	}

	var matches []RuleMatch
	for _, rule := range r.rules {
		params := parametersFor(event, rule.paths)
		result, err := rule.expr.Evaluate(params)
		if err != nil {
			if r.strict {
				logger.Printf("rule %q eval failed: %v", rule.when, err)
			}
			continue
		}
		if ok, _ := result.(bool); !ok {
			continue
		}
		for _, topic := range rule.emit {
			matches = append(matches, RuleMatch{Topic: topic, Drivers: rule.drivers})
		}
	}
	return matches
}

func parametersFor(event Event, paths map[string]string) map[string]interface{} {
	params := make(map[string]interface{}, len(event.Data)+len(paths)+2)
	for key, value := range event.Data {
		params[key] = value
	}
	params["ref"] = event.Ref
	params["after"] = event.After
	for name, path := range paths {
		value, err := jsonpath.Get(path, event.RawObject)
		if err != nil {
			value = nil
		}
		params[name] = value
	}
	return params
}

// rewriteJSONPaths replaces each $.path in when with a bracketed parameter name.
func rewriteJSONPaths(when string) (string, map[string]string) {
	paths := map[string]string{}
	i := 0
	rewritten := jsonPathPattern.ReplaceAllStringFunc(when, func(path string) string {
		name := fmt.Sprintf("__jsonpath_%d", i)
		i++
		paths[name] = path
		return "[" + name + "]"
	})
	if len(paths) == 0 {
		return strings.TrimSpace(when), nil
	}
	return strings.TrimSpace(rewritten), paths
}
