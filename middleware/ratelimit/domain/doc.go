// Package domain define contratos e tipos de domínio para controle de admissão
// (janela fixa + reputação por cliente) e limite de concorrência.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura.
//
// Tipos principais:
//
//   - Key: identificador grosseiro do cliente (fingerprint de rede, não identidade verificada)
//   - WindowEntry / WindowStore: contador da janela fixa por chave
//   - ReputationEntry / ReputationStore: score [0,1] e violações por chave
//   - Decision: resultado de uma checagem (allow/deny + metadados para headers)
package domain
