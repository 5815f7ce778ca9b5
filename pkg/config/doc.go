// Package config loads softhid configuration files.
//
// Files are TOML or YAML, chosen by extension:
//
//	packet_size   = 60
//	cancel_opcode = 0x7f
//	dev_dir       = "/dev"
//
//	[log]
//	level  = "info"
//	format = "console"
//
//	[[variant]]
//	name       = "hc"
//	dev_name   = "signet-hc"
//	vendor_id  = 0x5e2a
//	product_id = 0x0002
//
// Keys missing from a file keep the values from [Default]. A non-empty
// variant list replaces the default list.
package config
