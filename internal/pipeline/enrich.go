package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/denirokp/dialogs-rag-v3/internal/cluster"
	"github.com/denirokp/dialogs-rag-v3/internal/config"
	"github.com/denirokp/dialogs-rag-v3/internal/embed"
	"github.com/denirokp/dialogs-rag-v3/internal/model"
)

// subthemeKey partitions clustering work. Clustering one subtheme is
// independent of all others, so partitions run concurrently.
type subthemeKey struct {
	Theme    string
	Subtheme string
}

// Enrich attaches density-cluster labels to surviving mentions, partitioned
// by subtheme, using externally supplied embeddings. The stage is advisory:
// when the provider is nil, times out, or returns unusable vectors, it
// returns the input unchanged. A broken enrichment signal must never block
// consolidation, aggregation, or the quality gate.
func Enrich(ctx context.Context, in []model.Mention, provider embed.Provider, cfg config.ClusterConfig) ([]model.Mention, []model.ClusterInfo) {
	log := zap.L().With(zap.String("stage", "enrich"))

	if !cfg.Enabled || provider == nil {
		log.Debug("enrich: disabled or no embedding provider, skipping")
		return in, nil
	}

	survivors := make([]model.Mention, 0, len(in))
	for _, m := range in {
		if m.Surviving() && !m.InvalidEvidence {
			survivors = append(survivors, m)
		}
	}
	if len(survivors) == 0 {
		return in, nil
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	vectors, err := provider.Vectors(fetchCtx, survivors)
	if err != nil {
		log.Warn("enrich: embeddings unavailable, skipping", zap.Error(err))
		return in, nil
	}

	partitions := make(map[subthemeKey][]model.Mention)
	for _, m := range survivors {
		if _, ok := vectors[m.ID]; !ok {
			continue
		}
		key := subthemeKey{Theme: m.Theme, Subtheme: m.Subtheme}
		partitions[key] = append(partitions[key], m)
	}
	if len(partitions) == 0 {
		log.Warn("enrich: no mention has a vector, skipping")
		return in, nil
	}

	minSize := cfg.MinClusterSize
	if minSize <= 0 {
		minSize = 10
	}

	var mu sync.Mutex
	labels := make(map[string]int, len(survivors))
	var infos []model.ClusterInfo

	g, _ := errgroup.WithContext(ctx)
	for key, members := range partitions {
		g.Go(func() error {
			partLabels, partInfos := clusterPartition(key, members, vectors, minSize, cfg)
			mu.Lock()
			for id, l := range partLabels {
				labels[id] = l
			}
			infos = append(infos, partInfos...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := make([]model.Mention, len(in))
	for i, m := range in {
		if l, ok := labels[m.ID]; ok {
			label := l
			m.ClusterLabel = &label
		}
		out[i] = m
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Theme != infos[j].Theme {
			return infos[i].Theme < infos[j].Theme
		}
		if infos[i].Subtheme != infos[j].Subtheme {
			return infos[i].Subtheme < infos[j].Subtheme
		}
		return infos[i].Label < infos[j].Label
	})

	log.Info("enrich: clustering complete",
		zap.Int("partitions", len(partitions)),
		zap.Int("clusters", len(infos)),
	)
	return out, infos
}

// clusterPartition clusters one subtheme's mentions. Small partitions keep
// every mention at the reserved noise label but still produce a summary row
// with keywords, matching the dashboard's expectations.
func clusterPartition(key subthemeKey, members []model.Mention, vectors map[string][]float32, minSize int, cfg config.ClusterConfig) (map[string]int, []model.ClusterInfo) {
	labels := make(map[string]int, len(members))

	texts := make([]string, len(members))
	for i, m := range members {
		texts[i] = m.TextQuote
	}

	if len(members) < minSize {
		for _, m := range members {
			labels[m.ID] = model.NoiseCluster
		}
		return labels, []model.ClusterInfo{{
			Theme:    key.Theme,
			Subtheme: key.Subtheme,
			Label:    model.NoiseCluster,
			Size:     len(members),
			Keywords: cluster.Keywords(texts, cfg.Keywords),
		}}
	}

	vecs := make([][]float32, len(members))
	for i, m := range members {
		vecs[i] = vectors[m.ID]
	}

	assigned := cluster.DBSCAN(vecs, cluster.Params{Eps: cfg.Eps, MinPoints: minSize})

	byLabel := make(map[int][]string)
	for i, m := range members {
		labels[m.ID] = assigned[i]
		byLabel[assigned[i]] = append(byLabel[assigned[i]], m.TextQuote)
	}

	sorted := make([]int, 0, len(byLabel))
	for l := range byLabel {
		sorted = append(sorted, l)
	}
	sort.Ints(sorted)

	infos := make([]model.ClusterInfo, 0, len(sorted))
	for _, l := range sorted {
		infos = append(infos, model.ClusterInfo{
			Theme:    key.Theme,
			Subtheme: key.Subtheme,
			Label:    l,
			Size:     len(byLabel[l]),
			Keywords: cluster.Keywords(byLabel[l], cfg.Keywords),
		})
	}
	return labels, infos
}
