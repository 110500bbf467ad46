package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strconv"
	"strings"

	"qwed/internal/types"
)

// ImageEngine checks declared image properties against the decoded header
// of a base64 payload. Header-only decoding: no pixel data is interpreted
// and no ML is involved.
//
// DSL shape, one key=value per line:
//
//	format=png
//	width=100
//	height=50
//	data=<base64 payload>
//
// format/width/height are the declared claims (each optional, at least one
// required); data is mandatory. Mismatches surface as findings.
type ImageEngine struct {
	cfg Config
}

// NewImageEngine creates the image engine.
func NewImageEngine(cfg Config) *ImageEngine {
	return &ImageEngine{cfg: cfg}
}

// Name implements Engine.
func (e *ImageEngine) Name() string { return "image_header_check" }

// Domain implements Engine.
func (e *ImageEngine) Domain() types.Domain { return types.DomainImage }

type imageClaims struct {
	format string
	width  int
	height int
	data   []byte
}

func parseImageExpr(expr string) (imageClaims, error) {
	claims := imageClaims{width: -1, height: -1}
	haveClaim := false

	for _, line := range strings.Split(expr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			return imageClaims{}, fmt.Errorf("malformed line %q, expected key=value", line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "format":
			claims.format = strings.ToLower(value)
			haveClaim = true
		case "width", "height":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return imageClaims{}, fmt.Errorf("malformed %s %q", key, value)
			}
			if key == "width" {
				claims.width = n
			} else {
				claims.height = n
			}
			haveClaim = true
		case "data":
			decoded, err := base64.StdEncoding.DecodeString(value)
			if err != nil {
				return imageClaims{}, fmt.Errorf("malformed base64 payload: %v", err)
			}
			claims.data = decoded
		default:
			return imageClaims{}, fmt.Errorf("unknown key %q", key)
		}
	}

	if claims.data == nil {
		return imageClaims{}, fmt.Errorf("missing data line")
	}
	if !haveClaim {
		return imageClaims{}, fmt.Errorf("no declared property to verify")
	}
	return claims, nil
}

// Validate implements Engine.
func (e *ImageEngine) Validate(expr string) error {
	_, err := parseImageExpr(expr)
	return err
}

// Evaluate implements Engine.
func (e *ImageEngine) Evaluate(ctx context.Context, expr string) types.EngineOutcome {
	return runWithBudget(ctx, e.cfg.EvalTimeout, func() types.EngineOutcome {
		claims, err := parseImageExpr(expr)
		if err != nil {
			return types.SyntaxFailure(err.Error())
		}

		cfg, format, err := image.DecodeConfig(bytes.NewReader(claims.data))
		if err != nil {
			return types.SyntaxFailure(fmt.Sprintf("undecodable image payload: %v", err))
		}

		var findings []types.Finding
		if claims.format != "" && claims.format != format {
			findings = append(findings, types.Finding{
				Rule:   "property_mismatch",
				Detail: fmt.Sprintf("format: declared %s, actual %s", claims.format, format),
			})
		}
		if claims.width > 0 && claims.width != cfg.Width {
			findings = append(findings, types.Finding{
				Rule:   "property_mismatch",
				Detail: fmt.Sprintf("width: declared %d, actual %d", claims.width, cfg.Width),
			})
		}
		if claims.height > 0 && claims.height != cfg.Height {
			findings = append(findings, types.Finding{
				Rule:   "property_mismatch",
				Detail: fmt.Sprintf("height: declared %d, actual %d", claims.height, cfg.Height),
			})
		}

		if len(findings) > 0 {
			return types.EngineOutcome{Kind: types.OutcomeFindings, Findings: findings}
		}
		return types.Computed(fmt.Sprintf("%s %dx%d", format, cfg.Width, cfg.Height), true)
	})
}
