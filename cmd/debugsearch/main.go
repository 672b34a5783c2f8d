package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/hyperifyio/goanswer/internal/search"
	selecter "github.com/hyperifyio/goanswer/internal/select"
)

// debugsearch runs one search provider and prints the raw results followed
// by the links that survive filtering.
func main() {
	provider := os.Getenv("SEARCH_PROVIDER")
	q := "What is love?"
	if len(os.Args) > 1 {
		q = os.Args[1]
	}
	client := &http.Client{Timeout: 20 * time.Second}

	var prov search.Provider
	switch provider {
	case "searxng":
		base := os.Getenv("SEARX_URL")
		if base == "" {
			base = "http://localhost:8888"
		}
		prov = &search.SearxNG{BaseURL: base, HTTPClient: client, UserAgent: "debugsearch/1.0"}
	case "file":
		prov = &search.FileProvider{Path: os.Getenv("SEARCH_FILE")}
	default:
		prov = &search.Google{BaseURL: os.Getenv("SEARCH_URL"), HTTPClient: client}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()
	res, err := prov.Search(ctx, q, 20)
	fmt.Printf("provider: %s err: %v\n", prov.Name(), err)
	for i, r := range res {
		fmt.Printf("%d. %s - %s\n", i+1, r.Title, r.URL)
	}
	fmt.Println("selected:")
	for i, u := range selecter.FilterLinks(search.URLs(res), selecter.Options{MaxTotal: 5}) {
		fmt.Printf("[%d] %s\n", i+1, u)
	}
}
