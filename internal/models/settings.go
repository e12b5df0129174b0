package models

// CallerSettings настройки конкретного вызывающего. Нули означают значения по умолчанию.
type CallerSettings struct {
	MaxServerSize  uint64 `json:"max_server_size,omitempty"`
	LinkTTLMinutes int    `json:"link_ttl_minutes,omitempty"`
}

// UpdateSettingsInput входные данные для изменения настроек
type UpdateSettingsInput struct {
	MaxServerSizeMB *int `json:"max_server_size_mb,omitempty"`
	LinkTTLMinutes  *int `json:"link_ttl_minutes,omitempty"`
}

// EffectiveSettings настройки с подставленными значениями по умолчанию
type EffectiveSettings struct {
	MaxServerSize  uint64 `json:"max_server_size"`
	MaxServerSizeH string `json:"max_server_size_human"`
	LinkTTLMinutes int    `json:"link_ttl_minutes"`
	DirectSize     uint64 `json:"direct_size"`
	DirectSizeH    string `json:"direct_size_human"`
	SizePresetsMB  []int  `json:"size_presets_mb"`
	TTLPresets     []int  `json:"ttl_presets_minutes"`
}
