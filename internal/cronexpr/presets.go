package cronexpr

// Preset is a named expression offered as a starting point in the builder.
type Preset struct {
	Name       string
	Expression string
}

// Presets lists the built-in presets. Every expression uses builder syntax.
var Presets = []Preset{
	{Name: "Every minute", Expression: "0 * * * * *"},
	{Name: "Every hour", Expression: "0 0 * * * *"},
	{Name: "Every day at midnight", Expression: "0 0 0 * * *"},
	{Name: "Every day at 9:00 AM", Expression: "0 0 9 * * *"},
	{Name: "Weekdays at 9:00 AM", Expression: "0 0 9 * * 1,2,3,4,5"},
	{Name: "Every Monday at 9:00 AM", Expression: "0 0 9 * * 1"},
	{Name: "First day of every month", Expression: "0 0 0 1 * *"},
}

// LookupPreset returns the preset with the given name.
func LookupPreset(name string) (Preset, bool) {
	for _, p := range Presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}
