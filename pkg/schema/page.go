package schema

// SectionSpec is one planned page section: a type tag plus a loose property
// bag (copy, nav items, image slot names).
type SectionSpec struct {
	Type  string         `json:"type"`
	Props map[string]any `json:"props,omitempty"`
}

// PageSpec is the ordered section list for one page plus asset-role
// bindings. Superseded, never mutated, on regenerate.
type PageSpec struct {
	PageName string            `json:"page_name"`
	Sections []SectionSpec     `json:"sections"`
	Assets   map[string]string `json:"assets,omitempty"` // asset role → slot name
}

// ImageSlot is one image request produced during composition.
type ImageSlot struct {
	Role        string         `json:"role"`
	Prompt      string         `json:"prompt"`
	AspectRatio string         `json:"aspect_ratio,omitempty"`
	StyleHints  map[string]any `json:"style_hints,omitempty"`
}

// ResolvedImage is the outcome of one image slot: a real generated URL or a
// deterministic placeholder when generation failed or was disabled.
type ResolvedImage struct {
	Role        string `json:"role"`
	URL         string `json:"url"`
	Prompt      string `json:"prompt"`
	Placeholder bool   `json:"placeholder"`
}

// RunRequest is the inbound generation request.
type RunRequest struct {
	ProjectID     string        `json:"project_id"`
	Input         string        `json:"input"`
	ChatHistory   []ChatMessage `json:"chat_history,omitempty"`
	ReferenceURLs []string      `json:"reference_urls,omitempty"`
	PageKind      string        `json:"page_kind"`
	PinnedSlots   []string      `json:"pinned_slots,omitempty"`
	UseAIImages   bool          `json:"use_ai_images"`
	Model         string        `json:"model,omitempty"`
}

// GenerationResult is the terminal output of a pipeline run, the
// specification JSON consumed by the Scene Synchronization Engine.
type GenerationResult struct {
	RunID         string                   `json:"run_id"`
	PageSpec      *PageSpec                `json:"page_spec"`
	ComponentTree *ComponentSpec           `json:"component_tree"`
	DesignSystem  *DesignSystem            `json:"design_system"`
	Images        map[string]ResolvedImage `json:"images,omitempty"` // slot role → outcome
	Degraded      bool                     `json:"degraded"`
	Warnings      []string                 `json:"warnings,omitempty"`
}
