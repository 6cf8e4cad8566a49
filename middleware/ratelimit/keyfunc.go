package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

type KeyFunc func(r *http.Request) string

// IdentifierOptions controla como a chave do cliente é derivada da requisição.
type IdentifierOptions struct {
	// Por padrão o IP é o primeiro de X-Forwarded-For, quando presente.
	// IgnoreXForwardedFor usa só RemoteAddr: ative quando o serviço fica exposto
	// sem um proxy que sobrescreve o header (o cliente poderia forjá-lo).
	IgnoreXForwardedFor bool
	// APIKeyHeader é o header da API key (ex.: X-API-Key). Vazio desativa.
	APIKeyHeader string
	// FoldAPIKey mistura a API key no hash do user-agent.
	FoldAPIKey bool
	// PreferAPIKey: com API key presente, a chave é só o hash dela (ignora IP/UA).
	PreferAPIKey bool
}

const fingerprintBuckets = 10000

// DefaultKeyFunc devolve "{ip}:{hash}", com hash = xxhash(user-agent[|api-key]) % 10000.
//
// É uma impressão digital grosseira, não uma identidade: clientes distintos atrás
// do mesmo NAT/proxy com o mesmo user-agent caem na mesma chave e dividem o limite.
// Quando há API key e PreferAPIKey está ativo a chave vira "apikey:{hex(xxhash)}";
// a key em si nunca aparece na chave, em headers ou em logs.
func DefaultKeyFunc(opts IdentifierOptions) KeyFunc {
	return func(r *http.Request) string {
		apiKey := ""
		if opts.APIKeyHeader != "" {
			apiKey = strings.TrimSpace(r.Header.Get(opts.APIKeyHeader))
		}

		if opts.PreferAPIKey && apiKey != "" {
			return "apikey:" + strconv.FormatUint(xxhash.Sum64String(apiKey), 16)
		}

		fp := r.UserAgent()
		if opts.FoldAPIKey && apiKey != "" {
			fp += "|" + apiKey
		}
		bucket := xxhash.Sum64String(fp) % fingerprintBuckets

		return clientIP(r, !opts.IgnoreXForwardedFor) + ":" + strconv.FormatUint(bucket, 10)
	}
}

func clientIP(r *http.Request, trustXFF bool) string {
	if trustXFF {
		// pega o primeiro IP do X-Forwarded-For (cliente original)
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	// fallback: RemoteAddr
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
