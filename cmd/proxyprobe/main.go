// Package main provides the entry point for the proxyprobe CLI.
//
// proxyprobe tests whether vless, vmess, trojan and shadowsocks proxy
// candidates are alive and measures how fast they answer.
//
// Usage:
//
//	proxyprobe probe <candidate-uri>...
//	proxyprobe probe --file links.txt
//	cat links.txt | proxyprobe probe --stdin
//
// See --help for all available options.
package main

func main() {
	Execute()
}
