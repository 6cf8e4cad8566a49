// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - WindowStore / ReputationStore: mapas listrados em memória (xxhash por shard)
//   - Janitor: limpeza periódica das entradas vencidas
//   - Breaker: circuit breaker (sony/gobreaker) em volta das checagens
//   - SemaphorePool: limite de concorrência com golang.org/x/sync/semaphore
//   - Stats: memória, Redis e Prometheus
package infra
