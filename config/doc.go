// Package config holds the initialization-time configuration for graphs,
// checkpoint stores, LLM providers, the RPC server and the CLI.
//
// Configuration only exists while things are being built. Graph observers and
// checkpoint stores are referenced by name and resolved through registries,
// so a config file never has to describe Go values.
//
// Every struct follows the same layering rule: start from Default…(), then
// Merge a loaded struct over it.
//
//   - Strings merge when the source is non-empty
//   - Integers and durations merge when the source is greater than zero
//   - Floats merge when the source is non-nil (pointer fields)
//   - Nested configs merge recursively
//
// Files may be JSON or YAML; the extension decides:
//
//	cfg, err := config.Load("stepflow.yaml")
package config
