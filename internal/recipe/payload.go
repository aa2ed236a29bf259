package recipe

import (
	"mime/multipart"
	"strconv"

	"github.com/smartclips-editor/internal/media"
)

// Attachment is a media slot of a request. Local media is sent as a file
// part under FileField, remote media as its URL under URLField.
type Attachment struct {
	FileField string
	URLField  string
	Ref       *media.Reference
}

// Payload is the request shape of one edit mode. The set of implementations
// is closed: TrimPayload, SpeedPayload, EffectPayload, SplitScreenPayload.
type Payload interface {
	Mode() Mode
	// Path is the processing endpoint path for this mode
	Path() string
	// Attachments lists the media slots to send given the edited media
	Attachments(primary *media.Reference) []Attachment
	// WriteFields writes the mode-specific form fields
	WriteFields(mw *multipart.Writer) error
	// Params returns the mode-specific fields for record keeping
	Params() map[string]string

	isPayload()
}

func single(primary *media.Reference) []Attachment {
	return []Attachment{{FileField: "file", URLField: "sourceUrl", Ref: primary}}
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// TrimPayload keeps [StartTime, EndTime] seconds of the source
type TrimPayload struct {
	StartTime float64
	EndTime   float64
}

func (TrimPayload) Mode() Mode   { return ModeTrim }
func (TrimPayload) Path() string { return "/api/video/trim" }
func (TrimPayload) isPayload()   {}

func (p TrimPayload) Attachments(primary *media.Reference) []Attachment {
	return single(primary)
}

func (p TrimPayload) WriteFields(mw *multipart.Writer) error {
	if err := mw.WriteField("startTime", formatSeconds(p.StartTime)); err != nil {
		return err
	}
	return mw.WriteField("endTime", formatSeconds(p.EndTime))
}

func (p TrimPayload) Params() map[string]string {
	return map[string]string{
		"startTime": formatSeconds(p.StartTime),
		"endTime":   formatSeconds(p.EndTime),
	}
}

// SpeedPayload changes playback speed by SpeedFactor
type SpeedPayload struct {
	SpeedFactor float64
}

func (SpeedPayload) Mode() Mode   { return ModeSpeed }
func (SpeedPayload) Path() string { return "/api/video/speed" }
func (SpeedPayload) isPayload()   {}

func (p SpeedPayload) Attachments(primary *media.Reference) []Attachment {
	return single(primary)
}

func (p SpeedPayload) WriteFields(mw *multipart.Writer) error {
	return mw.WriteField("speedFactor", formatSeconds(p.SpeedFactor))
}

func (p SpeedPayload) Params() map[string]string {
	return map[string]string{"speedFactor": formatSeconds(p.SpeedFactor)}
}

// EffectPayload applies a named visual effect
type EffectPayload struct {
	EffectType Effect
}

func (EffectPayload) Mode() Mode   { return ModeEffect }
func (EffectPayload) Path() string { return "/api/video/effect" }
func (EffectPayload) isPayload()   {}

func (p EffectPayload) Attachments(primary *media.Reference) []Attachment {
	return single(primary)
}

func (p EffectPayload) WriteFields(mw *multipart.Writer) error {
	return mw.WriteField("effectType", string(p.EffectType))
}

func (p EffectPayload) Params() map[string]string {
	return map[string]string{"effectType": string(p.EffectType)}
}

// SplitScreenPayload composes the edited media with Partner
type SplitScreenPayload struct {
	Partner *media.Reference
	Layout  Layout
}

func (SplitScreenPayload) Mode() Mode   { return ModeSplitScreen }
func (SplitScreenPayload) Path() string { return "/api/video/split-screen" }
func (SplitScreenPayload) isPayload()   {}

func (p SplitScreenPayload) Attachments(primary *media.Reference) []Attachment {
	return []Attachment{
		{FileField: "file1", URLField: "sourceUrl1", Ref: primary},
		{FileField: "file2", URLField: "sourceUrl2", Ref: p.Partner},
	}
}

func (p SplitScreenPayload) WriteFields(mw *multipart.Writer) error {
	return mw.WriteField("layout", string(p.Layout))
}

func (p SplitScreenPayload) Params() map[string]string {
	params := map[string]string{"layout": string(p.Layout)}
	if p.Partner != nil {
		params["partner"] = p.Partner.Locator()
	}
	return params
}
