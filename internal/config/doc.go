// Package config provides configuration loading and validation for the form relay service.
// Built-in defaults match the stock deployment (HTTP on :3000, relay on 127.0.0.1:5000);
// an optional YAML file overrides any subset of them.
package config
