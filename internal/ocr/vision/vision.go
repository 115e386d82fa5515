// Package vision recognizes text with the Google Cloud Vision API.
package vision

import (
	"context"
	"fmt"
	"image"
	"strings"

	gvision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/pipeline"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/label-annotator/internal/region"
)

// Config selects credentials and endpoint. Empty values use Application
// Default Credentials and the public endpoint.
type Config struct {
	CredentialsFile string
	Endpoint        string
}

// Backend creates Vision API workers.
type Backend struct {
	cfg Config
}

var _ pipeline.TextBackend = (*Backend)(nil)

// New creates a Backend.
func New(cfg Config) *Backend {
	return &Backend{cfg: cfg}
}

func (b *Backend) clientOptions() []option.ClientOption {
	var opts []option.ClientOption
	if b.cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(b.cfg.CredentialsFile))
	}
	if b.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(b.cfg.Endpoint))
	}
	return opts
}

// Initialize creates the API client. The engine mode has no Vision
// equivalent and is ignored.
func (b *Backend) Initialize(ctx context.Context, language string, engineMode int) (pipeline.TextWorker, error) {
	client, err := gvision.NewImageAnnotatorClient(ctx, b.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	logger.Info("Vision", "Client ready (language hint %q)", languageHint(language))

	return &Worker{
		hints: []string{languageHint(language)},
		annotate: func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
			return client.BatchAnnotateImages(ctx, req)
		},
		close: client.Close,
	}, nil
}

// Tesseract language codes mapped to BCP-47 hints.
var hints = map[string]string{
	"eng":     "en",
	"deu":     "de",
	"fra":     "fr",
	"spa":     "es",
	"ita":     "it",
	"jpn":     "ja",
	"kor":     "ko",
	"chi_sim": "zh",
}

func languageHint(language string) string {
	if h, ok := hints[language]; ok {
		return h
	}
	return language
}

// Worker sends one region per request.
type Worker struct {
	hints    []string
	annotate func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)
	close    func() error
}

// Recognize runs document text detection on img.
func (w *Worker) Recognize(ctx context.Context, img image.Image, opts pipeline.RecognizeOptions) (pipeline.TextResult, error) {
	data, err := region.EncodePNG(img)
	if err != nil {
		return pipeline.TextResult{}, err
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: data},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
				ImageContext: &visionpb.ImageContext{LanguageHints: w.hints},
			},
		},
	}

	resp, err := w.annotate(ctx, req)
	if err != nil {
		return pipeline.TextResult{}, fmt.Errorf("vision API request failed: %w", err)
	}
	if len(resp.GetResponses()) == 0 {
		return pipeline.TextResult{}, nil
	}
	return textResult(resp.GetResponses()[0], opts.CharWhitelist)
}

// textResult maps one annotation response, keeping only whitelisted
// characters. Confidence is the mean page confidence in percent.
func textResult(res *visionpb.AnnotateImageResponse, whitelist string) (pipeline.TextResult, error) {
	if res.GetError() != nil {
		return pipeline.TextResult{}, fmt.Errorf("vision API error: %s", res.GetError().GetMessage())
	}
	full := res.GetFullTextAnnotation()
	if full == nil {
		return pipeline.TextResult{}, nil
	}

	var total float64
	pages := full.GetPages()
	for _, p := range pages {
		total += float64(p.GetConfidence())
	}
	var conf float64
	if len(pages) > 0 {
		conf = total / float64(len(pages)) * 100
	}

	return pipeline.TextResult{Text: filter(full.GetText(), whitelist), Confidence: conf}, nil
}

// filter drops runes outside whitelist. Line breaks are kept.
func filter(text, whitelist string) string {
	if whitelist == "" {
		return text
	}
	return strings.Map(func(r rune) rune {
		if r == '\n' || strings.ContainsRune(whitelist, r) {
			return r
		}
		return -1
	}, text)
}

// Close releases the API client.
func (w *Worker) Close() error {
	if w.close == nil {
		return nil
	}
	return w.close()
}
