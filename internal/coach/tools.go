package coach

// ToolName identifies a tool the coach may call.
type ToolName string

const (
	ToolAnalyzeAudioWindow ToolName = "analyze_audio_window"
	ToolSetMetronome       ToolName = "set_metronome"
	ToolUpdateUI           ToolName = "update_ui"
	ToolRewardBadge        ToolName = "reward_badge"
	ToolRhythmExercises    ToolName = "get_rhythm_exercises"
	ToolMusicFact          ToolName = "get_music_fact"
	ToolTheoryLesson       ToolName = "get_theory_lesson"
)

// ToolKind tells the dispatch layer what to do with a successful tool call.
type ToolKind int

const (
	// KindUnknown covers names the gateway has no handling for.
	KindUnknown ToolKind = iota
	// KindTraceOnly tools are declared to the model but only reported back.
	KindTraceOnly
	// KindRemote tools are resolved by the content gateway.
	KindRemote
	// KindLocal tools are forwarded to the client as a state update.
	KindLocal
)

func (k ToolKind) String() string {
	switch k {
	case KindTraceOnly:
		return "trace_only"
	case KindRemote:
		return "remote"
	case KindLocal:
		return "local"
	default:
		return "unknown"
	}
}

var toolKinds = map[ToolName]ToolKind{
	ToolAnalyzeAudioWindow: KindTraceOnly,
	ToolSetMetronome:       KindLocal,
	ToolUpdateUI:           KindLocal,
	ToolRewardBadge:        KindLocal,
	ToolRhythmExercises:    KindRemote,
	ToolMusicFact:          KindRemote,
	ToolTheoryLesson:       KindRemote,
}

// KindOf classifies a tool name reported by a model.
func KindOf(name string) ToolKind {
	return toolKinds[ToolName(name)]
}

// Param is a provider-neutral JSON schema fragment for tool parameters.
type Param struct {
	Type        string
	Description string
	Properties  map[string]*Param
	Items       *Param
	Required    []string
}

// JSONSchema renders the parameter as a JSON schema object.
func (p *Param) JSONSchema() map[string]any {
	if p == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	out := map[string]any{"type": p.Type}
	if p.Description != "" {
		out["description"] = p.Description
	}
	if p.Type == "object" {
		props := make(map[string]any, len(p.Properties))
		for name, sub := range p.Properties {
			props[name] = sub.JSONSchema()
		}
		out["properties"] = props
	}
	if p.Items != nil {
		out["items"] = p.Items.JSONSchema()
	}
	if len(p.Required) > 0 {
		out["required"] = p.Required
	}
	return out
}

// ToolSpec declares one callable tool to the model.
type ToolSpec struct {
	Name        ToolName
	Description string
	Parameters  *Param
}

// Tools is the fixed tool catalog declared to every coaching engine.
var Tools = []ToolSpec{
	{
		Name:        ToolAnalyzeAudioWindow,
		Description: "Analyzes a window of musical performance metrics (offsets, bpm) to determine if the student is on beat.",
		Parameters: &Param{
			Type: "object",
			Properties: map[string]*Param{
				"metrics": {
					Type: "array",
					Items: &Param{
						Type: "object",
						Properties: map[string]*Param{
							"offset": {Type: "number", Description: "Difference in seconds from nearest beat"},
							"bpm":    {Type: "number"},
						},
					},
				},
			},
			Required: []string{"metrics"},
		},
	},
	{
		Name:        ToolSetMetronome,
		Description: "Adjusts the metronome speed (BPM) for the current quest.",
		Parameters: &Param{
			Type:       "object",
			Properties: map[string]*Param{"bpm": {Type: "number"}},
			Required:   []string{"bpm"},
		},
	},
	{
		Name:        ToolUpdateUI,
		Description: "Updates the frontend feedback message and instructions.",
		Parameters: &Param{
			Type: "object",
			Properties: map[string]*Param{
				"message":     {Type: "string"},
				"instruction": {Type: "string"},
			},
			Required: []string{"message"},
		},
	},
	{
		Name:        ToolRewardBadge,
		Description: "Awards a badge to the student for a specific achievement.",
		Parameters: &Param{
			Type: "object",
			Properties: map[string]*Param{
				"type":   {Type: "string"},
				"reason": {Type: "string"},
			},
			Required: []string{"type", "reason"},
		},
	},
	{
		Name:        ToolRhythmExercises,
		Description: "Fetches a list of rhythmic exercises from the educational content library.",
		Parameters: &Param{
			Type: "object",
			Properties: map[string]*Param{
				"level": {Type: "number", Description: "Difficulty level (1-5)"},
				"style": {Type: "string", Description: "Aesthetic style e.g. basic, rock, jazz"},
			},
		},
	},
	{
		Name:        ToolMusicFact,
		Description: "Fetches a fun and educational music fact to share with the student.",
		Parameters:  &Param{Type: "object", Properties: map[string]*Param{}},
	},
	{
		Name:        ToolTheoryLesson,
		Description: "Fetches a short music theory lesson on a specific topic (rhythm, tempo, dynamics, pitch).",
		Parameters: &Param{
			Type: "object",
			Properties: map[string]*Param{
				"topic": {Type: "string", Description: "The theory topic to explain"},
			},
		},
	},
}
