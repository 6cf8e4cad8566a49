// Package ratelimit fornece adapters HTTP (net/http) para rate limit e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (janela fixa, reputação, fail-open, acquire/timeout) sem net/http
//   - infra: implementações concretas (stores listrados, breaker, semáforo, stats)
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Caminhos isentos (/healthz, /metrics, ...) passam direto
//  2. Extrai a chave do cliente (IP + hash do user-agent, ou API key)
//  3. Chama a camada application para obter a decisão
//  4. Se bloqueado, responde 429 em JSON (rate limit) ou 503 (concorrência)
//  5. Se permitido, chama o próximo handler e devolve o status à reputação
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como RATE_LIMIT_MAX_REQUESTS, RATE_LIMIT_MODE, CONCURRENCY_MAX e CONCURRENCY_TIMEOUT.
package ratelimit
