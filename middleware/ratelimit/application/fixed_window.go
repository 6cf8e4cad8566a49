package application

import (
	"fmt"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// FixedWindowLimiter conta requisições por chave em janelas fixas.
//
// Não guarda estado próprio: tudo vive no Store, e o read-check-write de uma
// chave roda dentro de Store.Apply (atômico por chave).
type FixedWindowLimiter struct {
	Store domain.WindowStore
}

// Check aplica os parâmetros p à chave no instante now.
//
// Janelas começam num segundo inteiro, a mesma resolução de ResetEpoch: uma
// negação acontece com now <= start+W = ResetEpoch, então esperar Retry-After
// segundos sempre cai depois do fim da janela.
//
// Só devolve erro quando o store devolve (ex.: domain.ErrCorruptEntry);
// chave desconhecida é o caso normal de primeiro acesso.
func (l FixedWindowLimiter) Check(key domain.Key, p domain.Params, now time.Time) (domain.Decision, error) {
	if !p.Valid() {
		return domain.Decision{}, fmt.Errorf("fixed window: invalid params max=%d window=%d", p.MaxRequests, p.WindowSeconds)
	}

	var dec domain.Decision
	err := l.Store.Apply(key, now, func(cur domain.WindowEntry, found bool) domain.WindowEntry {
		switch {
		case !found || now.Sub(cur.WindowStart) > p.Window():
			cur = domain.WindowEntry{Count: 1, WindowStart: now.Truncate(time.Second)}
			dec.Allowed = true
			dec.Remaining = p.MaxRequests - 1
		case cur.Count < p.MaxRequests:
			cur.Count++
			dec.Allowed = true
			dec.Remaining = p.MaxRequests - cur.Count
		default:
			// limite atingido: não incrementa
			dec.Allowed = false
			dec.Remaining = 0
		}

		cur.MaxRequests = p.MaxRequests
		cur.WindowSeconds = p.WindowSeconds
		dec.ResetEpoch = cur.WindowStart.Unix() + int64(p.WindowSeconds)
		return cur
	})
	if err != nil {
		return domain.Decision{}, fmt.Errorf("fixed window check %q: %w", string(key), err)
	}

	dec.Limit = p.MaxRequests
	dec.WindowSeconds = p.WindowSeconds
	return dec, nil
}
