package models

// Product is a selectable floor treatment from the reference catalog.
// ReferenceImages and MaskImage are file paths resolved against the catalog
// directory at load time.
type Product struct {
	ID              string   `yaml:"id"               json:"id"`
	Name            string   `yaml:"name"             json:"name"`
	Collection      string   `yaml:"collection"       json:"collection,omitempty"`
	Description     string   `yaml:"description"      json:"description,omitempty"`
	PromptFragment  string   `yaml:"prompt_fragment"  json:"-"`
	ReferenceImages []string `yaml:"reference_images" json:"-"`
	MaskImage       string   `yaml:"mask_image"       json:"-"`
}

// Sample is a preset room photograph shipped with the catalog.
type Sample struct {
	ID    string `yaml:"id"    json:"id"`
	Name  string `yaml:"name"  json:"name"`
	Image string `yaml:"image" json:"-"`
}
