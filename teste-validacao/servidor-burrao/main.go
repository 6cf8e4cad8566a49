package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
)

// Upstream "burrão" para validar o gateway à mão:
//
//	/showTela  sempre 200
//	/falha     sempre 500 (derruba o score do cliente no modo adaptativo)
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	http.HandleFunc("/showTela", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<h1>Tela do Sistema</h1><p>Requisição recebida com sucesso!</p>")
		logger.Info("request", slog.String("path", r.URL.Path), slog.String("remote", r.RemoteAddr))
	})
	http.HandleFunc("/falha", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "falha proposital", http.StatusInternalServerError)
		logger.Warn("forced failure", slog.String("path", r.URL.Path), slog.String("remote", r.RemoteAddr))
	})

	logger.Info("servidor rodando", slog.String("addr", "http://localhost:8081"))
	if err := http.ListenAndServe(":8081", nil); err != nil {
		logger.Error("erro ao subir o servidor", slog.Any("error", err))
		os.Exit(1)
	}
}
