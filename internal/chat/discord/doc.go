// Package discord adapts a discordgo session to service.ChatPlatform and
// feeds "!verify <token>" messages to the redeemer.
package discord
