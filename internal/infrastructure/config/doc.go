// Package config handles loading and validating the mesh provisioner configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (MQTT passwords, InfluxDB tokens) should be set via environment variables
//   - mesh.expose_keys prints cryptographic material and is for bench use only
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Mesh.TickInterval)
package config
