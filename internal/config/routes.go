package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/die-net/routefwd/internal/route"
)

var ErrNoRoutes = errors.New("no routes configured")

var linePattern = regexp.MustCompile(`(\S+):(\d+)\s+(\S+):(\d+)`)

// Load reads the route file at path and returns a validated table. Unless the
// file name ends in .yaml or .yml it is parsed as the line format.
func Load(path string, log zerolog.Logger) (route.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return route.Table{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var routes []route.Route
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		routes, err = ParseYAML(f)
	default:
		routes, err = ParseLines(f, log)
	}
	if err != nil {
		return route.Table{}, fmt.Errorf("%s: %w", path, err)
	}
	if len(routes) == 0 {
		return route.Table{}, fmt.Errorf("%s: %w", path, ErrNoRoutes)
	}

	tbl, err := route.NewTable(routes)
	if err != nil {
		return route.Table{}, fmt.Errorf("%s: %w", path, err)
	}

	for _, r := range tbl.Routes() {
		log.Info().Str("route", r.String()).Msg("route added")
	}
	return tbl, nil
}

// ParseLines parses the line format. Blank lines and lines starting with '#'
// are skipped; lines that don't look like a route are logged and skipped.
func ParseLines(r io.Reader, log zerolog.Logger) ([]route.Route, error) {
	var routes []route.Route

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if line == "" || line[0] == '#' {
			continue
		}

		m := linePattern.FindStringSubmatch(line)
		if m == nil {
			log.Warn().Int("line", lineNo).Str("text", line).Msg("ignoring malformed config line")
			continue
		}

		sport, err := route.ParsePort(m[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		dport, err := route.ParsePort(m[4])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		routes = append(routes, route.Route{
			SourceIP:   m[1],
			SourcePort: sport,
			DestDomain: m[3],
			DestPort:   dport,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return routes, nil
}

type yamlFile struct {
	Routes []yamlRoute `yaml:"routes"`
}

type yamlRoute struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
}

// ParseYAML parses the YAML format.
func ParseYAML(r io.Reader) ([]route.Route, error) {
	var doc yamlFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	routes := make([]route.Route, 0, len(doc.Routes))
	for i, yr := range doc.Routes {
		rt, err := yr.route()
		if err != nil {
			return nil, fmt.Errorf("routes[%d]: %w", i, err)
		}
		routes = append(routes, rt)
	}
	return routes, nil
}

func (yr yamlRoute) route() (route.Route, error) {
	shost, sport, err := splitHostPort(yr.Source)
	if err != nil {
		return route.Route{}, fmt.Errorf("source: %w", err)
	}
	dhost, dport, err := splitHostPort(yr.Destination)
	if err != nil {
		return route.Route{}, fmt.Errorf("destination: %w", err)
	}
	return route.Route{SourceIP: shost, SourcePort: sport, DestDomain: dhost, DestPort: dport}, nil
}

func splitHostPort(s string) (string, uint16, error) {
	host, port, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", route.ErrInvalidRoute, err)
	}
	p, err := route.ParsePort(port)
	if err != nil {
		return "", 0, err
	}
	return host, p, nil
}
