// Package notes implements C2: the tolerant decoder and round-trip
// encoder for the two bracketed blocks a trap persists in a map object's
// free-form notes field (spec §4.2). Grounded on the teacher's
// parseConfig[T] generic decode-from-map pattern
// (internal/application/executor/config_parser.go) for the "tolerant
// decode into a typed struct" shape; the block-scanning itself has no
// library analog in the pack and is plain regexp/strings.
package notes

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/oakhollow/trapengine/internal/domain"
	trapErrors "github.com/oakhollow/trapengine/internal/domain/errors"
)

const (
	triggerMarker   = "!traptrigger"
	detectionMarker = "!trapdetection"
	lockedMarker    = "!traplocked"
	ignoreTag       = "{ignoretraps}"
)

var entityDecoder = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

var entityEncoder = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// Decode parses a map object's notes and returns the Trap Config it
// describes. A present trigger block with any recognized key is sufficient
// to identify the object as a trap; missing blocks mean "no trap" (not an
// error).
func Decode(objectID, notesText string) (domain.TrapConfig, bool, error) {
	var cfg domain.TrapConfig

	if raw, ok := extractBlock(notesText, triggerMarker); ok {
		cfg.HasTriggerBlock = true
		kv := parseKeyValues(raw)
		if err := decodeTrigger(&cfg, kv); err != nil {
			return domain.TrapConfig{}, false, trapErrors.NewConfigParseError(objectID, err.Error())
		}
	}

	if raw, ok := extractBlock(notesText, detectionMarker); ok {
		cfg.HasDetectionBlock = true
		kv := parseKeyValues(raw)
		if err := decodeDetection(&cfg, kv); err != nil {
			return domain.TrapConfig{}, false, trapErrors.NewConfigParseError(objectID, err.Error())
		}
	}

	if !cfg.HasTriggerBlock && !cfg.HasDetectionBlock {
		return domain.TrapConfig{}, false, nil
	}

	if err := validate(cfg); err != nil {
		return domain.TrapConfig{}, false, trapErrors.NewConfigParseError(objectID, err.Error())
	}

	return cfg, true, nil
}

func validate(cfg domain.TrapConfig) error {
	if cfg.CurrentUses > cfg.MaxUses {
		return fmt.Errorf("currentUses %d exceeds maxUses %d", cfg.CurrentUses, cfg.MaxUses)
	}
	if cfg.Type == domain.TrapTypeInteraction && len(cfg.Options) > 0 {
		return fmt.Errorf("interaction trap must not carry standard-only options")
	}
	return nil
}

// extractBlock finds the first {!marker ...} block and returns its raw
// interior text (everything between the marker and the closing brace),
// tracking bracket depth so a "]" or "}" inside a quoted value doesn't
// terminate the scan early.
func extractBlock(notes, marker string) (string, bool) {
	start := strings.Index(notes, "{"+marker)
	if start == -1 {
		return "", false
	}
	i := start + len("{"+marker)
	depth := 0 // depth of [ ] nesting inside the current value
	for j := i; j < len(notes); j++ {
		switch notes[j] {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case '}':
			if depth == 0 {
				return notes[i:j], true
			}
		}
	}
	return notes[i:], true // unterminated block: tolerate, take rest
}

var keyPattern = regexp.MustCompile(`^\s*([A-Za-z0-9_]+)\s*:\s*`)

// parseKeyValues scans "key:[value] key2:[value2] ..." tolerantly. Bare
// and quoted values are both accepted; quotes are stripped and HTML
// entities decoded.
func parseKeyValues(raw string) map[string]string {
	out := make(map[string]string)
	for len(raw) > 0 {
		m := keyPattern.FindStringSubmatchIndex(raw)
		if m == nil {
			break
		}
		key := raw[m[2]:m[3]]
		rest := raw[m[1]:]
		if !strings.HasPrefix(rest, "[") {
			break
		}
		depth := 0
		end := -1
		for i := 0; i < len(rest); i++ {
			switch rest[i] {
			case '[':
				depth++
			case ']':
				depth--
				if depth == 0 {
					end = i
				}
			}
			if end != -1 {
				break
			}
		}
		if end == -1 {
			break
		}
		val := rest[1:end]
		val = strings.TrimSpace(val)
		if len(val) >= 2 && val[0] == '"' && val[len(val)-1] == '"' {
			val = val[1 : len(val)-1]
		}
		out[strings.ToLower(key)] = entityDecoder.Replace(val)
		raw = rest[end+1:]
	}
	return out
}

var knownTriggerKeys = map[string]bool{
	"type": true, "uses": true, "armed": true, "primary": true,
	"opt2": true, "opt3": true, "success": true, "failure": true,
	"check1type": true, "check1dc": true, "check2type": true, "check2dc": true,
	"movetrig": true, "auto": true, "pos": true,
}

func decodeTrigger(cfg *domain.TrapConfig, kv map[string]string) error {
	cfg.MovementTrigger = true // default true per §3
	cfg.ExtraTrigger = map[string]string{}

	if v, ok := kv["type"]; ok && v == string(domain.TrapTypeInteraction) {
		cfg.Type = domain.TrapTypeInteraction
	} else {
		cfg.Type = domain.TrapTypeStandard
	}

	if v, ok := kv["uses"]; ok {
		c, m, err := parseUses(v)
		if err != nil {
			return err
		}
		cfg.CurrentUses, cfg.MaxUses = c, m
	}

	cfg.IsArmed = kv["armed"] == "on"
	cfg.PrimaryMacro = kv["primary"]

	var opts []string
	if v, ok := kv["opt2"]; ok && v != "" {
		opts = append(opts, v)
	}
	if v, ok := kv["opt3"]; ok && v != "" {
		opts = append(opts, v)
	}
	if cfg.Type == domain.TrapTypeStandard {
		cfg.Options = opts
	}

	cfg.SuccessMacro = kv["success"]
	cfg.FailureMacro = kv["failure"]

	var checks []domain.SkillCheck
	if v, ok := kv["check1type"]; ok {
		dc, _ := strconv.Atoi(kv["check1dc"])
		checks = append(checks, domain.SkillCheck{SkillType: v, DC: dc})
	}
	if v, ok := kv["check2type"]; ok {
		dc, _ := strconv.Atoi(kv["check2dc"])
		checks = append(checks, domain.SkillCheck{SkillType: v, DC: dc})
	}
	cfg.Checks = checks

	if v, ok := kv["movetrig"]; ok {
		cfg.MovementTrigger = v == "on"
	}
	cfg.AutoTrigger = kv["auto"] == "on"

	if v, ok := kv["pos"]; ok {
		cfg.Position = decodePosition(v)
	} else {
		cfg.Position = domain.Position{Mode: domain.PositionIntersection}
	}

	for k, v := range kv {
		if !knownTriggerKeys[k] {
			cfg.ExtraTrigger[k] = v
		}
	}
	return nil
}

func decodePosition(v string) domain.Position {
	switch v {
	case string(domain.PositionCenter):
		return domain.Position{Mode: domain.PositionCenter}
	case string(domain.PositionIntersection):
		return domain.Position{Mode: domain.PositionIntersection}
	default:
		parts := strings.SplitN(v, ",", 2)
		if len(parts) == 2 {
			x, errX := strconv.Atoi(strings.TrimSpace(parts[0]))
			y, errY := strconv.Atoi(strings.TrimSpace(parts[1]))
			if errX == nil && errY == nil {
				return domain.Position{Mode: domain.PositionCell, CellX: x, CellY: y}
			}
		}
		return domain.Position{Mode: domain.PositionIntersection}
	}
}

func parseUses(v string) (int, int, error) {
	parts := strings.SplitN(v, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed uses value %q", v)
	}
	c, errC := strconv.Atoi(strings.TrimSpace(parts[0]))
	m, errM := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errC != nil || errM != nil {
		return 0, 0, fmt.Errorf("malformed uses value %q", v)
	}
	return c, m, nil
}

var knownDetectionKeys = map[string]bool{
	"spotdc": true, "range": true, "noticeplayer": true, "noticegm": true,
	"barfallback": true, "luck": true, "luckdie": true, "aura": true,
	"enabled": true, "detected": true,
}

func decodeDetection(cfg *domain.TrapConfig, kv map[string]string) error {
	cfg.PassiveEnabled = true // default true per §3
	cfg.ExtraDetection = map[string]string{}

	if v, ok := kv["spotdc"]; ok {
		dc, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("malformed spotdc %q", v)
		}
		cfg.PassiveSpotDC = dc
	}
	if v, ok := kv["range"]; ok {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("malformed range %q", v)
		}
		cfg.PassiveMaxRange = r
	}
	cfg.PassiveNoticePlayer = kv["noticeplayer"]
	cfg.PassiveNoticeGM = kv["noticegm"]
	cfg.PPTokenBarFallback = kv["barfallback"]
	cfg.EnableLuckRoll = kv["luck"] == "true"
	cfg.LuckRollDie = kv["luckdie"]
	cfg.ShowDetectionAura = kv["aura"] == "true"
	if v, ok := kv["enabled"]; ok {
		cfg.PassiveEnabled = v == "true"
	}
	cfg.Detected = kv["detected"] == "on"

	for k, v := range kv {
		if !knownDetectionKeys[k] {
			cfg.ExtraDetection[k] = v
		}
	}
	return nil
}

// Encode emits the notes text for cfg, replacing any existing trigger/
// detection blocks in existingNotes (or appending fresh ones) and leaving
// all other free text untouched. Optional string fields (macros, options,
// notice templates and the like) are emitted only when non-empty; the
// numeric and on/off fields are always written. The detection block is
// omitted entirely when detection is fully disabled (HasDetectionBlock is
// false).
func Encode(existingNotes string, cfg domain.TrapConfig) string {
	notes := existingNotes

	if cfg.HasTriggerBlock {
		notes = replaceOrAppendBlock(notes, triggerMarker, encodeTrigger(cfg))
	} else {
		notes = removeBlock(notes, triggerMarker)
	}

	if cfg.HasDetectionBlock {
		notes = replaceOrAppendBlock(notes, detectionMarker, encodeDetection(cfg))
	} else {
		notes = removeBlock(notes, detectionMarker)
	}

	return notes
}

func encodeTrigger(cfg domain.TrapConfig) string {
	var b strings.Builder
	b.WriteString("type:[" + string(orDefault(string(cfg.Type), string(domain.TrapTypeStandard))) + "]")
	b.WriteString(fmt.Sprintf(" uses:[%d/%d]", cfg.CurrentUses, cfg.MaxUses))
	b.WriteString(" armed:[" + onOff(cfg.IsArmed) + "]")
	if cfg.PrimaryMacro != "" {
		b.WriteString(" primary:[" + quoteIfNeeded(cfg.PrimaryMacro) + "]")
	}
	if cfg.Type == domain.TrapTypeStandard {
		if len(cfg.Options) > 0 {
			b.WriteString(" opt2:[" + quoteIfNeeded(cfg.Options[0]) + "]")
		}
		if len(cfg.Options) > 1 {
			b.WriteString(" opt3:[" + quoteIfNeeded(cfg.Options[1]) + "]")
		}
	}
	if cfg.Type == domain.TrapTypeInteraction {
		if cfg.SuccessMacro != "" {
			b.WriteString(" success:[" + quoteIfNeeded(cfg.SuccessMacro) + "]")
		}
		if cfg.FailureMacro != "" {
			b.WriteString(" failure:[" + quoteIfNeeded(cfg.FailureMacro) + "]")
		}
		for i, c := range cfg.Checks {
			if i > 1 {
				break
			}
			n := i + 1
			b.WriteString(fmt.Sprintf(" check%dtype:[%s] check%ddc:[%d]", n, quoteIfNeeded(c.SkillType), n, c.DC))
		}
	}
	b.WriteString(" movetrig:[" + onOff(cfg.MovementTrigger) + "]")
	b.WriteString(" auto:[" + onOff(cfg.AutoTrigger) + "]")
	b.WriteString(" pos:[" + encodePosition(cfg.Position) + "]")

	appendExtras(&b, cfg.ExtraTrigger)
	return b.String()
}

func encodeDetection(cfg domain.TrapConfig) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("spotdc:[%d]", cfg.PassiveSpotDC))
	b.WriteString(fmt.Sprintf(" range:[%g]", cfg.PassiveMaxRange))
	if cfg.PassiveNoticePlayer != "" {
		b.WriteString(" noticeplayer:[" + quoteIfNeeded(cfg.PassiveNoticePlayer) + "]")
	}
	if cfg.PassiveNoticeGM != "" {
		b.WriteString(" noticegm:[" + quoteIfNeeded(cfg.PassiveNoticeGM) + "]")
	}
	if cfg.PPTokenBarFallback != "" {
		b.WriteString(" barfallback:[" + quoteIfNeeded(cfg.PPTokenBarFallback) + "]")
	}
	b.WriteString(" luck:[" + trueFalse(cfg.EnableLuckRoll) + "]")
	if cfg.LuckRollDie != "" {
		b.WriteString(" luckdie:[" + cfg.LuckRollDie + "]")
	}
	b.WriteString(" aura:[" + trueFalse(cfg.ShowDetectionAura) + "]")
	b.WriteString(" enabled:[" + trueFalse(cfg.PassiveEnabled) + "]")
	b.WriteString(" detected:[" + onOff(cfg.Detected) + "]")

	appendExtras(&b, cfg.ExtraDetection)
	return b.String()
}

func appendExtras(b *strings.Builder, extra map[string]string) {
	if len(extra) == 0 {
		return
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" " + k + ":[" + quoteIfNeeded(extra[k]) + "]")
	}
}

func encodePosition(p domain.Position) string {
	switch p.Mode {
	case domain.PositionCell:
		return fmt.Sprintf("%d,%d", p.CellX, p.CellY)
	case domain.PositionCenter:
		return string(domain.PositionCenter)
	default:
		return string(domain.PositionIntersection)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func trueFalse(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// quoteIfNeeded entity-encodes a value and wraps it in quotes when it
// contains characters that would otherwise be ambiguous with the block
// delimiters.
func quoteIfNeeded(v string) string {
	encoded := entityEncoder.Replace(v)
	if strings.ContainsAny(v, " []{}") {
		return `"` + encoded + `"`
	}
	return encoded
}

func replaceOrAppendBlock(notes, marker, interior string) string {
	newBlock := "{" + marker + " " + interior + "}"
	if _, ok := extractBlock(notes, marker); ok {
		start := strings.Index(notes, "{"+marker)
		end := blockEnd(notes, start, marker)
		return notes[:start] + newBlock + notes[end:]
	}
	if notes != "" {
		return strings.TrimRight(notes, " \n") + " " + newBlock
	}
	return newBlock
}

func removeBlock(notes, marker string) string {
	if _, ok := extractBlock(notes, marker); !ok {
		return notes
	}
	start := strings.Index(notes, "{"+marker)
	end := blockEnd(notes, start, marker)
	return strings.TrimSpace(notes[:start] + notes[end:])
}

// blockEnd returns the index just past the closing brace of the block
// starting at start.
func blockEnd(notes string, start int, marker string) int {
	i := start + len("{"+marker)
	depth := 0
	for j := i; j < len(notes); j++ {
		switch notes[j] {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case '}':
			if depth == 0 {
				return j + 1
			}
		}
	}
	return len(notes)
}

// HasIgnoreTag reports whether notes carries the {ignoretraps} immunity marker.
func HasIgnoreTag(notes string) bool {
	return strings.Contains(notes, ignoreTag)
}

// SetIgnoreTag adds or removes the {ignoretraps} marker.
func SetIgnoreTag(notes string, on bool) string {
	has := HasIgnoreTag(notes)
	if on == has {
		return notes
	}
	if on {
		if notes != "" {
			return strings.TrimRight(notes, " \n") + " " + ignoreTag
		}
		return ignoreTag
	}
	return strings.TrimSpace(strings.Replace(notes, ignoreTag, "", 1))
}

// LockedTrapID extracts the trap id from a {!traplocked trap:<id>} marker,
// if present.
func LockedTrapID(notes string) (string, bool) {
	raw, ok := extractBlock(notes, lockedMarker)
	if !ok {
		return "", false
	}
	kv := parseKeyValues(raw)
	id, ok := kv["trap"]
	return id, ok
}

// EncodeLockedMarker renders the {!traplocked trap:<id>} marker.
func EncodeLockedMarker(trapID string) string {
	return "{" + lockedMarker + " trap:[" + trapID + "]}"
}

// SetLockedMarker replaces or appends the locked marker in notes, or
// removes it when trapID is empty.
func SetLockedMarker(notes, trapID string) string {
	if trapID == "" {
		return removeBlock(notes, lockedMarker)
	}
	return replaceOrAppendBlock(notes, lockedMarker, "trap:["+trapID+"]")
}
