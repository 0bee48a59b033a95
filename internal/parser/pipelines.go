package parser

import (
	"github.com/hekzam/markers-eval-25-sub000/internal/corner"
	"github.com/hekzam/markers-eval-25-sub000/internal/detect"
	"github.com/hekzam/markers-eval-25-sub000/internal/marker"
)

// payloadPipeline reads tagged symbols on every corner. Identity is carried
// by the bottom-left symbol.
type payloadPipeline struct {
	env Env
}

func newPayloadPipeline(env Env) Pipeline {
	return &payloadPipeline{env: env}
}

func (p *payloadPipeline) Parse(in Input) (Result, error) {
	features, err := detectAll(p.env.payloadReader(in), in.Image)
	if err != nil {
		return Result{}, err
	}
	p.env.Logger.Debug("payload features", "count", len(features))

	res, err := corner.ByPayload(features, p.env.Signature)
	if err != nil {
		return Result{}, err
	}
	out, err := calibrate(p.env, in, res)
	if err != nil {
		return Result{}, err
	}
	out.Metadata = ParseMetadata(res.Content(marker.BottomLeft))
	return out, nil
}

// anchoredPipeline locates the signed bottom-right symbol and labels plain
// marks on the other corners geometrically. Identity is carried by the header.
type anchoredPipeline struct {
	env   Env
	shape func(in Input) detect.Detector
}

func newCirclePipeline(env Env) Pipeline {
	return &anchoredPipeline{env: env, shape: func(in Input) detect.Detector {
		return detect.NewCircleDetector(detect.DefaultCircleParams().WithMarkerSize(in.MarkerSizePx))
	}}
}

func newShapePipeline(env Env) Pipeline {
	return &anchoredPipeline{env: env, shape: func(in Input) detect.Detector {
		params := detect.DefaultShapeParams().WithMarkerSize(in.MarkerSizePx).WithShape(shapeFamily(in.Markers))
		return detect.NewShapeDetector(params)
	}}
}

func (p *anchoredPipeline) Parse(in Input) (Result, error) {
	payloads, err := detectAll(p.env.payloadReader(in), in.Image)
	if err != nil {
		return Result{}, err
	}
	shapes, err := detectAll(p.shape(in), in.Image)
	if err != nil {
		return Result{}, err
	}
	p.env.Logger.Debug("anchored features", "payloads", len(payloads), "shapes", len(shapes))

	res, err := corner.ByAnchoredShapes(payloads, shapes, p.env.Signature)
	if err != nil {
		return Result{}, err
	}
	out, err := calibrate(p.env, in, res)
	if err != nil {
		return Result{}, err
	}
	if res.Found(marker.Header) {
		out.Metadata = ParseMetadata(res.Content(marker.Header))
	}
	return out, nil
}

// arucoPipeline maps dictionary ids to corners. A header symbol, when
// printed, carries identity.
type arucoPipeline struct {
	env Env
}

func newArucoPipeline(env Env) Pipeline {
	return &arucoPipeline{env: env}
}

func (p *arucoPipeline) Parse(in Input) (Result, error) {
	fiducials, err := detectAll(detect.NewArucoDetector(), in.Image)
	if err != nil {
		return Result{}, err
	}
	p.env.Logger.Debug("fiducial features", "count", len(fiducials))

	res, err := corner.ByFiducialID(fiducials, corner.FiducialCorners)
	if err != nil {
		return Result{}, err
	}
	out, err := calibrate(p.env, in, res)
	if err != nil {
		return Result{}, err
	}

	if in.Markers.HasHeader() {
		payloads, err := detectAll(p.env.payloadReader(in), in.Image)
		if err != nil {
			return Result{}, err
		}
		if _, header := corner.FindAnchor(payloads, p.env.Signature); header >= 0 {
			_, content, _ := corner.SplitPayload(payloads[header].Payload)
			out.Metadata = ParseMetadata(content)
		}
	}
	return out, nil
}

// shapeFamily returns the outline family printed on the unlabeled corners.
func shapeFamily(cfg marker.CopyMarkerConfig) marker.Type {
	for _, s := range []marker.Slot{marker.TopLeft, marker.TopRight, marker.BottomLeft} {
		if t := cfg[s].Type; t.IsShape() {
			return t
		}
	}
	return marker.TypeSquare
}
