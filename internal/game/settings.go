package game

// Settings control the narrator. Model, Temperature and WrapWidth apply to
// the next turn when changed; Genre, Theme and Setting only on Start.
type Settings struct {
	Model       string   `toml:"model"`
	Genre       string   `toml:"genre"`
	Theme       string   `toml:"theme"`
	Setting     string   `toml:"setting"`
	Temperature *float64 `toml:"temperature"`
	WrapWidth   int      `toml:"wrap_width"`
}

// DefaultSettings returns the stock fantasy adventure.
func DefaultSettings() Settings {
	return Settings{
		Model:     "llama3.2:latest",
		Genre:     "fantasy",
		Theme:     "adventure",
		Setting:   "medieval kingdom",
		WrapWidth: 80,
	}
}

// withDefaults fills empty fields from DefaultSettings.
func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Model == "" {
		s.Model = d.Model
	}
	if s.Genre == "" {
		s.Genre = d.Genre
	}
	if s.Theme == "" {
		s.Theme = d.Theme
	}
	if s.Setting == "" {
		s.Setting = d.Setting
	}
	if s.WrapWidth == 0 {
		s.WrapWidth = d.WrapWidth
	}
	return s
}

func (s Settings) generateOptions() map[string]any {
	if s.Temperature == nil {
		return nil
	}
	return map[string]any{"temperature": *s.Temperature}
}
