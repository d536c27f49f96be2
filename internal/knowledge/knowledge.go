package knowledge

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"gopkg.in/yaml.v3"
)

type Entry struct {
	Title string `yaml:"title"`
	Text  string `yaml:"text"`
}

// Knowledge is the bot's background information: a free-text block that is
// always included and entries that are picked per question by similarity.
type Knowledge struct {
	Content string
	Entries []Entry

	mu      sync.Mutex
	vectors [][]float32
}

type yamlData struct {
	Knowledge string  `yaml:"knowledge"`
	Entries   []Entry `yaml:"entries"`
}

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string, taskType genai.TaskType) ([]float32, error)
}

func Load(filePath string) *Knowledge {
	if filePath == "" {
		log.Println("Knowledge file path is not provided, skipping.")
		return &Knowledge{}
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		log.Printf("Could not read knowledge file at %s: %v", filePath, err)
		return &Knowledge{}
	}

	k, err := Parse(data)
	if err != nil {
		log.Printf("Could not parse knowledge YAML file: %v", err)
		return &Knowledge{}
	}

	log.Printf("Knowledge base loaded successfully (%d entries).", len(k.Entries))
	return k
}

func Parse(data []byte) (*Knowledge, error) {
	var parsed yamlData
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	return &Knowledge{Content: strings.TrimSpace(parsed.Knowledge), Entries: parsed.Entries}, nil
}

// Relevant returns up to k entries ordered by similarity to query. Entry
// embeddings are computed on first use and cached.
func (kb *Knowledge) Relevant(ctx context.Context, e Embedder, query string, k int) ([]Entry, error) {
	if len(kb.Entries) == 0 || k <= 0 {
		return nil, nil
	}
	vectors, err := kb.entryVectors(ctx, e)
	if err != nil {
		return nil, err
	}
	q, err := e.Embed(ctx, query, genai.TaskTypeRetrievalQuery)
	if err != nil {
		return nil, err
	}

	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, len(vectors))
	for i, v := range vectors {
		ranked[i] = scored{idx: i, score: cosine(q, v)}
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })

	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]Entry, 0, k)
	for _, r := range ranked[:k] {
		out = append(out, kb.Entries[r.idx])
	}
	return out, nil
}

func (kb *Knowledge) entryVectors(ctx context.Context, e Embedder) ([][]float32, error) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if kb.vectors != nil {
		return kb.vectors, nil
	}
	vectors := make([][]float32, 0, len(kb.Entries))
	for _, entry := range kb.Entries {
		v, err := e.Embed(ctx, entry.Title+"\n"+entry.Text, genai.TaskTypeRetrievalDocument)
		if err != nil {
			return nil, fmt.Errorf("embed entry %q: %w", entry.Title, err)
		}
		vectors = append(vectors, v)
	}
	kb.vectors = vectors
	return vectors, nil
}

// SystemPrompt builds the system instruction for query. Retrieval errors
// are logged and the free-text block is used on its own.
func (kb *Knowledge) SystemPrompt(ctx context.Context, e Embedder, query string, k int) string {
	var sb strings.Builder
	sb.WriteString(kb.Content)

	entries, err := kb.Relevant(ctx, e, query, k)
	if err != nil {
		log.Printf("Knowledge retrieval failed, using static knowledge only: %v", err)
	}
	for _, entry := range entries {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("## ")
		sb.WriteString(entry.Title)
		sb.WriteString("\n")
		sb.WriteString(entry.Text)
	}
	return sb.String()
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
