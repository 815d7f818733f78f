package netutil

import "strings"

// 常用应用层协议端口
const (
	PortEcho       = 7
	PortFTPData    = 20
	PortFTPControl = 21
	PortSSH        = 22
	PortTelnet     = 23
	PortSMTP       = 25
	PortHTTP       = 80
	PortSFTP       = 115
	PortHTTPS      = 443
)

// WellKnownPorts 按 scheme 名索引的端口表
var WellKnownPorts = map[string]int{
	"echo":     PortEcho,
	"ftp-data": PortFTPData,
	"ftp":      PortFTPControl,
	"ssh":      PortSSH,
	"telnet":   PortTelnet,
	"smtp":     PortSMTP,
	"http":     PortHTTP,
	"ws":       PortHTTP,
	"sftp":     PortSFTP,
	"https":    PortHTTPS,
	"wss":      PortHTTPS,
}

// PortForScheme 返回 scheme 的默认端口，未知时返回 0
func PortForScheme(scheme string) int {
	return WellKnownPorts[strings.ToLower(scheme)]
}
