// Package action implements C7: parse and dispatch a trap's action string
// (macro reference, command, template, or plain chat), separating and
// forwarding an embedded !triggerByTag line to the area-trigger
// collaborator, converting legacy /fx lines, and substituting the
// <&trap>/<&trapped> placeholders (spec §4.7). Grounded on the teacher's
// node_executors.go (tagged-variant dispatch over a small fixed set of
// kinds) and template.go (compiled+cached placeholder substitution).
package action

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/oakhollow/trapengine/internal/application/dialogue"
	"github.com/oakhollow/trapengine/internal/application/trigger"
	trapErrors "github.com/oakhollow/trapengine/internal/domain/errors"
	"github.com/oakhollow/trapengine/internal/domain/host"
)

var triggerByTagLine = regexp.MustCompile(`(?m)^[ \t]*!triggerByTag[ \t]+(\S+)[ \t]+(\S+)[ \t]+(.+?)[ \t]*$`)
var legacyFxLine = regexp.MustCompile(`(?m)^[ \t]*/fx[ \t]+(\S+)[ \t]+(\S+)[ \t]*$`)
var templateLine = regexp.MustCompile(`^&\{template:([^}]+)\}(.*)$`)
var templateFieldPattern = regexp.MustCompile(`\{\{([^=}]+)=([^}]*)\}\}`)

// Runner is C7. One Runner per running process, sharing the area-trigger
// collaborator and notice embellisher across every trap.
type Runner struct {
	Area        host.AreaTrigger
	Embellisher NoticeEmbellisher
	tpl         *templater
}

// NewRunner builds an Action Runner. embellisher may be nil, in which case
// the default TemplateEmbellisher (a no-op pass-through) is used.
func NewRunner(area host.AreaTrigger, embellisher NoticeEmbellisher) *Runner {
	if embellisher == nil {
		embellisher = TemplateEmbellisher{}
	}
	return &Runner{Area: area, Embellisher: embellisher, tpl: newTemplater()}
}

// Run implements trigger.ActionRunner: the caller already holds a freshly
// scanned TrapInstance, so its center and page are used directly as the
// triggerByTag origin.
func (r *Runner) Run(ctx context.Context, platform host.Platform, trap trigger.TrapInstance, trappedTokenID, action string) error {
	return r.run(ctx, platform, trap.ID, trap.OBB.Center.X, trap.OBB.Center.Y, trap.PageID, trappedTokenID, action)
}

// RunByID implements dialogue.ActionRunner: a dialogue resolution only
// knows the trap by id, so this resolves its position/page itself before
// dispatching.
func (r *Runner) RunByID(ctx context.Context, platform host.Platform, trapID, trappedTokenID, action string) error {
	obj, err := platform.GetObject(ctx, trapID, host.ObjectGraphic)
	if err != nil {
		return trapErrors.NewHostObjectMissing(trapID, "action runner: resolve trap by id")
	}
	left, _ := obj.Get("left")
	top, _ := obj.Get("top")
	return r.run(ctx, platform, trapID, toFloat(left), toFloat(top), obj.PageID(), trappedTokenID, action)
}

func (r *Runner) run(ctx context.Context, platform host.Platform, trapID string, trapX, trapY float64, pageID, trappedTokenID, action string) error {
	body, tag, radius, triggerAction, hasTrigger, malformed := splitTriggerByTag(action)
	body = convertLegacyFx(body)

	vars := map[string]any{
		"trap":    trapID,
		"trapped": trappedTokenID,
		"target":  trappedTokenID,
	}
	body = strings.ReplaceAll(body, "@{selected|token_id}", "<&trap>")
	body = strings.ReplaceAll(body, "@{target|token_id}", "<&target>")
	body = r.tpl.substitute(body, vars)

	var errs []error
	if err := r.dispatchLines(ctx, platform, trapID, body); err != nil {
		errs = append(errs, err)
	}

	if malformed {
		errs = append(errs, trapErrors.NewActionExecutionFailure(action, "malformed !triggerByTag line"))
	} else if hasTrigger {
		if r.Area == nil {
			errs = append(errs, trapErrors.NewActionExecutionFailure(action, "no area-trigger collaborator configured"))
		} else {
			triggerAction = r.tpl.substitute(convertLegacyFx(triggerAction), vars)
			if err := r.Area.ProcessTrigger(ctx, tag, radius, triggerAction, false, trapX, trapY, pageID); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

// splitTriggerByTag implements §4.7 step 1: pull the !triggerByTag line out
// of the body (it runs last, after everything else) and report whether one
// was present and whether it was malformed (unparseable radius).
func splitTriggerByTag(action string) (body, tag string, radius float64, triggerAction string, hasTrigger, malformed bool) {
	loc := triggerByTagLine.FindStringSubmatchIndex(action)
	if loc == nil {
		return action, "", 0, "", false, false
	}
	match := triggerByTagLine.FindStringSubmatch(action)
	body = action[:loc[0]] + action[loc[1]:]
	r, err := strconv.ParseFloat(match[2], 64)
	if err != nil {
		return strings.TrimSpace(body), "", 0, "", false, true
	}
	return strings.TrimSpace(body), match[1], r, match[3], true, false
}

// convertLegacyFx implements §4.7 step 2: rewrite a bare "/fx type[-color]
// target" line into the area-trigger collaborator's !spawnComplexFx form,
// leaving the target placeholder untouched for later substitution.
func convertLegacyFx(body string) string {
	return legacyFxLine.ReplaceAllString(body, "!spawnComplexFx $1 $2")
}

// dispatchLines implements §4.7 step 4: split the action body into lines
// and dispatch each through its lane, continuing past a failing line
// instead of aborting the rest (§4.7's error note).
func (r *Runner) dispatchLines(ctx context.Context, platform host.Platform, trapID, body string) error {
	var errs []error
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := r.dispatchLine(ctx, platform, trapID, line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) dispatchLine(ctx context.Context, platform host.Platform, trapID, line string) error {
	switch {
	case strings.HasPrefix(line, "#"):
		return r.dispatchMacro(ctx, platform, trapID, line)
	case strings.HasPrefix(line, "!") || strings.HasPrefix(line, "$"):
		return r.dispatchCommand(ctx, platform, trapID, line)
	case templateLine.MatchString(line):
		return r.dispatchTemplate(ctx, platform, line)
	default:
		return platform.SendChat(ctx, trapID, line)
	}
}

func (r *Runner) dispatchMacro(ctx context.Context, platform host.Platform, trapID, line string) error {
	name := strings.TrimSpace(strings.TrimPrefix(line, "#"))
	body, err := platform.RunMacro(ctx, name)
	if err != nil {
		return trapErrors.NewActionExecutionFailure(line, fmt.Sprintf("unknown macro %q", name))
	}
	return r.dispatchLines(ctx, platform, trapID, body)
}

func (r *Runner) dispatchCommand(ctx context.Context, platform host.Platform, trapID, line string) error {
	cmd := line
	if strings.HasPrefix(cmd, "$") {
		cmd = "!" + cmd[1:]
	}
	if !strings.Contains(cmd, "--ids") {
		cmd = cmd + " --ids " + trapID
	}
	return platform.SendCommand(ctx, cmd)
}

func (r *Runner) dispatchTemplate(ctx context.Context, platform host.Platform, line string) error {
	match := templateLine.FindStringSubmatch(line)
	if len(match) < 3 {
		return trapErrors.NewActionExecutionFailure(line, "malformed template payload")
	}
	name := match[1]
	fields := host.TemplateFields{}
	for _, f := range templateFieldPattern.FindAllStringSubmatch(match[2], -1) {
		fields[strings.TrimSpace(f[1])] = f[2]
	}
	return platform.SendTemplate(ctx, "", name, fields)
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

var _ trigger.ActionRunner = (*Runner)(nil)
var _ dialogue.ActionRunner = (*Runner)(nil)
