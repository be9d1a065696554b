package dss

// registerBuiltinCommands installs the full command surface spec.md 6
// names. Grounded on original_source's command_registry.cc RegisterCommands,
// which calls the same four per-family registration functions in the same
// order (client, key, misc, string).
func registerBuiltinCommands(s *Service) {
	registerClientCommands(s)
	registerKeyCommands(s)
	registerMiscCommands(s)
	registerStringCommands(s)
}
