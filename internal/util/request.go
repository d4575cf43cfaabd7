package util

import (
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strings"
)

func GenerateRequestID() string {
	winds := []string{
		"trade", "zephyr", "mistral", "sirocco", "levante",
		"gale", "squall", "breeze", "chinook", "bora",
	}
	sails := []string{
		"mainsail", "jib", "spinnaker", "genoa", "topsail",
		"staysail", "lateen", "gaff", "lug", "sprit",
	}

	wind := winds[rand.Intn(len(winds))]
	sail := sails[rand.Intn(len(sails))]
	suffix := fmt.Sprintf("%04x", rand.Intn(65536))

	return fmt.Sprintf("%s_%s_%s", wind, sail, suffix)
}

func GetClientIP(r *http.Request, trustProxyHeaders bool, trustedCIDRs []*net.IPNet) string {
	if !trustProxyHeaders {
		return remoteIP(r)
	}

	sourceIP := sourceIP(r)
	if sourceIP == nil || !isIPInTrustedCIDRs(sourceIP, trustedCIDRs) {
		return remoteIP(r)
	}

	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	return remoteIP(r)
}

func remoteIP(r *http.Request) string {
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

func sourceIP(r *http.Request) net.IP {
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return net.ParseIP(ip)
	}
	return net.ParseIP(r.RemoteAddr)
}

func isIPInTrustedCIDRs(ip net.IP, cidrs []*net.IPNet) bool {
	for _, cidr := range cidrs {
		if cidr != nil && cidr.Contains(ip) {
			return true
		}
	}
	return false
}
