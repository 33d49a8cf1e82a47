package classifier

import (
	"fmt"
	"os"

	"github.com/kazimov/jobtrail/domain"
	"gopkg.in/yaml.v3"
)

// SeedDictionary is the classifier's dynamic configuration (§9 Dynamic
// configuration): verb-pattern templates, sentence indicators, and seed
// phrases per archetype, loaded from YAML like the teacher's other
// env/file-driven config.
type SeedDictionary struct {
	Archetypes map[domain.Archetype]ArchetypeSeeds `yaml:"archetypes"`
}

type ArchetypeSeeds struct {
	VerbPatterns      []string `yaml:"verb_patterns"`
	SentenceIndicators []string `yaml:"sentence_indicators"`
	SeedPhrases       []string `yaml:"seed_phrases"`
}

// LoadSeedDictionary reads a YAML seed dictionary from path.
func LoadSeedDictionary(path string) (*SeedDictionary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed dictionary: %w", err)
	}
	var d SeedDictionary
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse seed dictionary: %w", err)
	}
	return &d, nil
}

// DefaultSeedDictionary is a minimal built-in dictionary used when no
// file is configured (tests, embedded/offline mode).
func DefaultSeedDictionary() *SeedDictionary {
	return &SeedDictionary{
		Archetypes: map[domain.Archetype]ArchetypeSeeds{
			domain.Builder: {
				VerbPatterns: []string{
					"design and implement", "build a new", "build the", "architect a",
					"stand up", "greenfield", "from the ground up", "build out",
				},
				SentenceIndicators: []string{
					"new platform", "greenfield project", "0 to 1", "net new",
				},
				SeedPhrases: []string{
					"design and build a new cloud-native platform from scratch",
					"architect greenfield services and own the roadmap",
				},
			},
			domain.Fixer: {
				VerbPatterns: []string{
					"migrate", "modernize", "modernise", "retire", "replace legacy",
					"upgrade", "re-platform", "rewrite the legacy",
				},
				SentenceIndicators: []string{
					"legacy system", "technical debt", "aging infrastructure",
				},
				SeedPhrases: []string{
					"migrate the legacy warehouse to a modern platform",
					"modernize aging infrastructure and retire technical debt",
				},
			},
			domain.Operator: {
				VerbPatterns: []string{
					"maintain", "support", "monitor", "operate", "keep the lights on",
					"on-call", "incident response", "patch and upgrade",
				},
				SentenceIndicators: []string{
					"production support", "on-call rotation", "sla", "uptime",
				},
				SeedPhrases: []string{
					"operate and maintain production systems with an on-call rotation",
					"monitor uptime and respond to incidents",
				},
			},
			domain.Translator: {
				VerbPatterns: []string{
					"partner with stakeholders", "translate requirements", "liaise with",
					"bridge the gap", "gather requirements", "enable teams",
				},
				SentenceIndicators: []string{
					"cross-functional", "stakeholder management", "business requirements",
				},
				SeedPhrases: []string{
					"partner with business stakeholders to translate requirements",
					"bridge the gap between engineering and the business",
				},
			},
		},
	}
}
