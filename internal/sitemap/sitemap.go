package sitemap

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/assetregistry/publisher/internal/config"
	"github.com/assetregistry/publisher/internal/storage"
)

const maxSitemapURLs = 50000

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

type sitemapURL struct {
	XMLName xml.Name `xml:"url"`
	Loc     string   `xml:"loc"`
	LastMod string   `xml:"lastmod,omitempty"`
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapIndex struct {
	XMLName  xml.Name          `xml:"sitemapindex"`
	XMLNS    string            `xml:"xmlns,attr"`
	Sitemaps []sitemapIndexRef `xml:"sitemap"`
}

type sitemapIndexRef struct {
	XMLName xml.Name `xml:"sitemap"`
	Loc     string   `xml:"loc"`
	LastMod string   `xml:"lastmod,omitempty"`
}

// SitemapGenerator creates sitemap XML files listing every published asset
// link in the public directory.
type SitemapGenerator struct {
	Storage *storage.FSStorage
	SiteURL string // e.g. "https://assets.example.com"
	Logger  *slog.Logger
}

// Generate writes {Root}/sitemaps/sitemap-static.xml, one or more
// sitemap-assets files and the sitemap-index.xml referencing them.
func (g *SitemapGenerator) Generate(ctx context.Context) error {
	if g.Storage == nil || g.SiteURL == "" {
		return errors.New("sitemap generator requires storage and site url")
	}
	now := time.Now().UTC().Format("2006-01-02")

	staticURLs := []sitemapURL{
		{Loc: g.SiteURL + "/", LastMod: now},
		{Loc: g.SiteURL + "/" + config.FullIndexName, LastMod: now},
		{Loc: g.SiteURL + "/" + config.MinimalIndexName, LastMod: now},
		{Loc: g.SiteURL + "/" + config.ArchiveName, LastMod: now},
	}
	staticFile := "sitemap-static.xml"
	if err := g.writeSitemap(ctx, staticFile, staticURLs); err != nil {
		return fmt.Errorf("write static sitemap: %w", err)
	}
	indexRefs := []sitemapIndexRef{{
		Loc:     g.SiteURL + "/sitemaps/" + staticFile,
		LastMod: now,
	}}

	urls, err := g.assetURLs(ctx)
	if err != nil {
		return err
	}
	chunks := chunkURLs(urls, maxSitemapURLs)
	for i, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		filename := "sitemap-assets"
		if len(chunks) > 1 {
			filename = fmt.Sprintf("%s-%d", filename, i+1)
		}
		filename += ".xml"
		if err := g.writeSitemap(ctx, filename, chunk); err != nil {
			return fmt.Errorf("write asset sitemap: %w", err)
		}
		indexRefs = append(indexRefs, sitemapIndexRef{
			Loc:     g.SiteURL + "/sitemaps/" + filename,
			LastMod: now,
		})
	}

	idx := sitemapIndex{
		XMLNS:    sitemapNS,
		Sitemaps: indexRefs,
	}
	content, err := encodeXML(idx)
	if err != nil {
		return err
	}
	if err := g.Storage.WriteFile(ctx, "sitemaps/sitemap-index.xml", content); err != nil {
		return err
	}
	if g.Logger != nil {
		g.Logger.Debug("sitemap generated", "assets", len(urls), "files", len(indexRefs))
	}
	return nil
}

// assetURLs lists <assetId>.json entries in the public directory root.
func (g *SitemapGenerator) assetURLs(ctx context.Context) ([]sitemapURL, error) {
	entries, err := os.ReadDir(g.Storage.Root)
	if err != nil {
		return nil, fmt.Errorf("read public dir: %w", err)
	}

	var urls []sitemapURL
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		name := entry.Name()
		if entry.IsDir() || !isAssetLink(name) {
			continue
		}
		var lastmod string
		if info, err := entry.Info(); err == nil {
			lastmod = info.ModTime().UTC().Format("2006-01-02")
		}
		urls = append(urls, sitemapURL{
			Loc:     g.SiteURL + "/" + name,
			LastMod: lastmod,
		})
	}
	sort.Slice(urls, func(i, j int) bool { return urls[i].Loc < urls[j].Loc })
	return urls, nil
}

func isAssetLink(name string) bool {
	if !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
		return false
	}
	return name != config.FullIndexName && name != config.MinimalIndexName
}

func (g *SitemapGenerator) writeSitemap(ctx context.Context, filename string, urls []sitemapURL) error {
	urlset := sitemapURLSet{
		XMLNS: sitemapNS,
		URLs:  urls,
	}
	content, err := encodeXML(urlset)
	if err != nil {
		return err
	}
	return g.Storage.WriteFile(ctx, "sitemaps/"+filename, content)
}

func encodeXML(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// chunkURLs splits urls into groups of at most n, always returning at
// least one group.
func chunkURLs(urls []sitemapURL, n int) [][]sitemapURL {
	chunks := [][]sitemapURL{}
	for len(urls) > n {
		chunks = append(chunks, urls[:n])
		urls = urls[n:]
	}
	return append(chunks, urls)
}
