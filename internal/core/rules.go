package core

// rules.go defines scheduling business rules and the rules config file.
//
// Rules are checked against the current data when they are created: a co-run
// rule must name known tasks, a load limit must name a known group, and so
// on. The validator later reads active co-run and phase-window rules.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// RuleType selects the variant of a rule.
type RuleType string

const (
	RuleCoRun              RuleType = "coRun"
	RuleSlotRestriction    RuleType = "slotRestriction"
	RuleLoadLimit          RuleType = "loadLimit"
	RulePhaseWindow        RuleType = "phaseWindow"
	RulePatternMatch       RuleType = "patternMatch"
	RulePrecedenceOverride RuleType = "precedenceOverride"
)

// RuleTypes lists every supported rule type.
func RuleTypes() []RuleType {
	return []RuleType{
		RuleCoRun, RuleSlotRestriction, RuleLoadLimit,
		RulePhaseWindow, RulePatternMatch, RulePrecedenceOverride,
	}
}

var (
	// ErrInvalidRule is returned when rule parameters do not fit the data.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrRuleNotFound is returned when a rule ID is unknown.
	ErrRuleNotFound = errors.New("rule not found")
)

// ParseRuleType validates a rule type name.
func ParseRuleType(s string) (RuleType, error) {
	for _, t := range RuleTypes() {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown rule type %q", ErrInvalidRule, s)
}

// RuleParams holds the parameters of every rule variant; each variant uses
// a subset.
type RuleParams struct {
	Tasks            []string `json:"tasks,omitempty" yaml:"tasks,omitempty"`                       // coRun
	Group            string   `json:"group,omitempty" yaml:"group,omitempty"`                       // slotRestriction, loadLimit
	MinCommonSlots   int      `json:"minCommonSlots,omitempty" yaml:"minCommonSlots,omitempty"`     // slotRestriction
	MaxSlotsPerPhase int      `json:"maxSlotsPerPhase,omitempty" yaml:"maxSlotsPerPhase,omitempty"` // loadLimit
	TaskID           string   `json:"taskId,omitempty" yaml:"taskId,omitempty"`                     // phaseWindow
	Phases           []int    `json:"phases,omitempty" yaml:"phases,omitempty"`                     // phaseWindow
	Regex            string   `json:"regex,omitempty" yaml:"regex,omitempty"`                       // patternMatch
	Template         string   `json:"template,omitempty" yaml:"template,omitempty"`                 // patternMatch
	Params           string   `json:"params,omitempty" yaml:"params,omitempty"`                     // patternMatch
	Rules            []string `json:"rules,omitempty" yaml:"rules,omitempty"`                       // precedenceOverride
	Priority         []string `json:"priority,omitempty" yaml:"priority,omitempty"`                 // precedenceOverride
}

// Rule is a scheduling business rule.
type Rule struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Type        RuleType   `json:"type" yaml:"type"`
	Parameters  RuleParams `json:"parameters" yaml:"parameters"`
	Active      bool       `json:"active" yaml:"active"`
}

func (r Rule) clone() Rule {
	r.Parameters.Tasks = slices.Clone(r.Parameters.Tasks)
	r.Parameters.Phases = slices.Clone(r.Parameters.Phases)
	r.Parameters.Rules = slices.Clone(r.Parameters.Rules)
	r.Parameters.Priority = slices.Clone(r.Parameters.Priority)
	return r
}

// NewRule checks params against st and returns an active rule with a fresh
// ID and a generated description.
func NewRule(typ RuleType, name string, params RuleParams, st *State) (Rule, error) {
	if err := CheckRule(typ, params, st); err != nil {
		return Rule{}, err
	}
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("%s Rule", typ)
	}
	return Rule{
		ID:          uuid.NewString(),
		Name:        name,
		Description: DescribeRule(typ, params),
		Type:        typ,
		Parameters:  params,
		Active:      true,
	}, nil
}

// CheckRule validates rule parameters against the data in st.
func CheckRule(typ RuleType, p RuleParams, st *State) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidRule, fmt.Sprintf(format, args...))
	}

	switch typ {
	case RuleCoRun:
		if len(p.Tasks) < 2 {
			return invalid("at least 2 tasks are required for a co-run rule")
		}
		known := st.taskIDSet()
		var unknown []string
		for _, id := range p.Tasks {
			if !known[id] {
				unknown = append(unknown, id)
			}
		}
		if len(unknown) > 0 {
			return invalid("unknown TaskIDs: %s", strings.Join(unknown, ", "))
		}

	case RuleSlotRestriction, RuleLoadLimit:
		n, label := p.MinCommonSlots, "minCommonSlots"
		if typ == RuleLoadLimit {
			n, label = p.MaxSlotsPerPhase, "maxSlotsPerPhase"
		}
		if p.Group == "" || n <= 0 {
			return invalid("group and a positive %s are required", label)
		}
		if !slices.Contains(st.Groups(), p.Group) {
			return invalid("unknown group: %s", p.Group)
		}

	case RulePhaseWindow:
		if p.TaskID == "" || len(p.Phases) == 0 {
			return invalid("taskId and phases are required")
		}
		if !st.taskIDSet()[p.TaskID] {
			return invalid("unknown TaskID: %s", p.TaskID)
		}
		for _, ph := range p.Phases {
			if ph < MinPhase || ph > MaxPhase {
				return invalid("phase %d is outside %d-%d", ph, MinPhase, MaxPhase)
			}
		}

	case RulePatternMatch:
		if p.Regex == "" || p.Template == "" {
			return invalid("regex and template are required")
		}
		if _, err := regexp.Compile(p.Regex); err != nil {
			return invalid("bad regex: %v", err)
		}

	case RulePrecedenceOverride:
		if len(p.Rules) == 0 || len(p.Priority) == 0 {
			return invalid("rules and priority order are required")
		}
		var unknown []string
		for _, id := range p.Rules {
			if st.ruleIndex(id) < 0 {
				unknown = append(unknown, id)
			}
		}
		if len(unknown) > 0 {
			return invalid("unknown rule IDs: %s", strings.Join(unknown, ", "))
		}

	default:
		return invalid("unknown rule type %q", typ)
	}
	return nil
}

// DescribeRule renders a one-line description of a rule.
func DescribeRule(typ RuleType, p RuleParams) string {
	switch typ {
	case RuleCoRun:
		return "Tasks must run together: " + strings.Join(p.Tasks, ", ")
	case RuleSlotRestriction:
		return fmt.Sprintf("Min %d slots for %s", p.MinCommonSlots, p.Group)
	case RuleLoadLimit:
		return fmt.Sprintf("Max %d slots for %s", p.MaxSlotsPerPhase, p.Group)
	case RulePhaseWindow:
		return fmt.Sprintf("Task %s in phases %s", p.TaskID, FormatPhases(p.Phases))
	case RulePatternMatch:
		return fmt.Sprintf("Match %s with %s", p.Regex, p.Template)
	case RulePrecedenceOverride:
		return "Override precedence"
	}
	return ""
}

// RulesConfig is the document exchanged as rules_config.json (or YAML).
type RulesConfig struct {
	Rules      []Rule          `json:"rules" yaml:"rules"`
	Priorities []Priority      `json:"priorities" yaml:"priorities"`
	Metadata   *ExportMetadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ConfigFormat is the encoding of a rules config document.
type ConfigFormat string

const (
	ConfigJSON ConfigFormat = "json"
	ConfigYAML ConfigFormat = "yaml"
)

// ConfigFormatFor picks the format from a file name; anything not ending in
// .yaml or .yml is JSON.
func ConfigFormatFor(filename string) ConfigFormat {
	lower := strings.ToLower(filename)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return ConfigYAML
	}
	return ConfigJSON
}

// ReadRulesConfig decodes a rules config. Rule types are checked and rules
// without an ID get one; parameters are not checked against data here.
func ReadRulesConfig(r io.Reader, format ConfigFormat) (*RulesConfig, error) {
	var cfg RulesConfig
	switch format {
	case ConfigYAML:
		if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode rules yaml: %w", err)
		}
	default:
		if err := json.NewDecoder(r).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode rules json: %w", err)
		}
	}

	for i := range cfg.Rules {
		typ, err := ParseRuleType(string(cfg.Rules[i].Type))
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		cfg.Rules[i].Type = typ
		if cfg.Rules[i].ID == "" {
			cfg.Rules[i].ID = uuid.NewString()
		}
		if cfg.Rules[i].Description == "" {
			cfg.Rules[i].Description = DescribeRule(typ, cfg.Rules[i].Parameters)
		}
	}
	if cfg.Rules == nil {
		cfg.Rules = []Rule{}
	}
	return &cfg, nil
}

// WriteRulesConfig encodes cfg as indented JSON or YAML.
func WriteRulesConfig(w io.Writer, cfg RulesConfig, format ConfigFormat) error {
	if format == ConfigYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encode rules yaml: %w", err)
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode rules json: %w", err)
	}
	return nil
}
