package utils

import (
	"net"
	"strings"
)

// CompleteAddress 把 ":8001" 或 "8001" 补全为 "127.0.0.1:8001"，已带主机名的地址原样返回。
func CompleteAddress(addr string) string {
	if host, port, err := net.SplitHostPort(addr); err == nil {
		if host == "" {
			host = "127.0.0.1"
		}
		return net.JoinHostPort(host, port)
	}
	return net.JoinHostPort("127.0.0.1", strings.TrimPrefix(addr, ":"))
}

// SplitList 解析逗号分隔的列表，忽略空项
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
