// Package config handles loading and validating the Rachio bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling, including per-account defaults
//
// Security Considerations:
//   - Rachio API keys should be set via GRAYLOGIC_RACHIO_API_KEY or
//     GRAYLOGIC_RACHIO_<ACCOUNT>_API_KEY rather than written to the file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, acct := range cfg.Rachio.Accounts {
//	    fmt.Println(acct.ID, acct.PollInterval())
//	}
package config
