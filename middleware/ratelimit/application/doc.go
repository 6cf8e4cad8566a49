// Package application contém os casos de uso (regras de aplicação) para rate limit
// e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Decide(key) retorna uma Decision (allow/deny + reset), e
// Service.Complete(key, success) devolve o resultado do handler para a reputação.
//
// Limiters:
//   - BasicLimiter: janela fixa com parâmetros constantes
//   - AdaptiveLimiter: ReputationTracker -> limite efetivo -> FixedWindowLimiter
package application
