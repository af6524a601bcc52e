package builtin

// PluginMetadata is the value bound under the pluginMetadata service id
// (I5: the one service that can never be overridden). It is always
// plugin-scoped: every plugin and module sees the metadata for its own
// pluginId.
type PluginMetadata struct {
	PluginID string
}
