package ratelimit

import "strings"

// DefaultExemptPaths são os endpoints de saúde/métricas que nunca passam pelo limiter.
var DefaultExemptPaths = []string{"/healthz", "/readyz", "/livez", "/metrics", "/health", "/ready", "/live"}

type exemptSet map[string]struct{}

func newExemptSet(paths []string) exemptSet {
	if paths == nil {
		paths = DefaultExemptPaths
	}
	s := make(exemptSet, len(paths))
	for _, p := range paths {
		if p = normalizePath(p); p != "" {
			s[p] = struct{}{}
		}
	}
	return s
}

func (s exemptSet) match(path string) bool {
	_, ok := s[normalizePath(path)]
	return ok
}

// "/healthz/" e "/healthz" são o mesmo caminho; "/" continua "/".
func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}
