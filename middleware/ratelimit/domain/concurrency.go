package domain

import "context"

// SlotPool representa um recurso com capacidade finita (ex: requisições em voo).
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar; nesse caso
// devolve o erro do contexto. Ao adquirir, retorna uma função de release que
// deve ser chamada exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), err error)
	// InUse é o número de vagas ocupadas no momento.
	InUse() int64
}
