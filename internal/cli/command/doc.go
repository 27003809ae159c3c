// Package command defines the memgate-issuer commands (urfave/cli/v2).
//
//	db init                      create the member schema
//	invite send [--group NAME]   run the invitation batch
//	member list | show EMAIL     inspect the store
//	config show | validate       inspect the configuration
package command
