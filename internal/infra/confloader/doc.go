// Package confloader loads layered configuration with koanf and watches
// configuration files with fsnotify.
//
// Sources, from lowest to highest priority:
//
//  1. Defaults already present in the target struct
//  2. A YAML file
//  3. Environment variables with the KVGATE_ prefix
//  4. Flat key maps, typically built from command-line flags
//
// Environment variable names use double underscores for nesting, so
// KVGATE_STORAGE__DATA_DIR sets storage.data_dir.
package confloader
