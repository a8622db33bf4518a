package models

// Service is an immutable catalog entry. Loaded from config at startup,
// never mutated at runtime.
type Service struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Category    string `yaml:"category" json:"category"`
	Price       int64  `yaml:"price" json:"price"`
	Duration    string `yaml:"duration" json:"duration"`
	Image       string `yaml:"image" json:"image"`
	Description string `yaml:"description" json:"description"`
	Available   bool   `yaml:"available" json:"available"`
}
