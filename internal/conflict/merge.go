package conflict

import "scenesync/internal/model"

// mergeFields combines two patches over a base annotation field by field.
// A field present on both sides with different values goes to the side
// with the winning stamp; a field present on one side only is kept.
func mergeFields(base model.Annotation, local model.AnnotationPatch, localStamp stamp, remote model.AnnotationPatch, remoteStamp stamp) (model.Annotation, []FieldConflict) {
	out := base
	var conflicts []FieldConflict
	localWins := localStamp.beats(remoteStamp)

	if local.Content != nil || remote.Content != nil {
		v, c := pickString("content", base.Content, local.Content, remote.Content, localWins)
		out.Content = v
		if c != nil {
			conflicts = append(conflicts, *c)
		}
	}
	if local.Target != nil || remote.Target != nil {
		v, c := pickString("target", base.Target, local.Target, remote.Target, localWins)
		out.Target = v
		if c != nil {
			conflicts = append(conflicts, *c)
		}
	}
	if local.Color != nil || remote.Color != nil {
		v, c := pickString("color", base.Color, local.Color, remote.Color, localWins)
		out.Color = v
		if c != nil {
			conflicts = append(conflicts, *c)
		}
	}
	if local.Position != nil || remote.Position != nil {
		switch {
		case local.Position != nil && remote.Position != nil && *local.Position != *remote.Position:
			resolved := *remote.Position
			if localWins {
				resolved = *local.Position
			}
			out.Position = resolved
			conflicts = append(conflicts, FieldConflict{
				Field: "position", Local: *local.Position, Remote: *remote.Position, Resolved: resolved,
			})
		case local.Position != nil:
			out.Position = *local.Position
		case remote.Position != nil:
			out.Position = *remote.Position
		}
	}
	if local.Pinned != nil || remote.Pinned != nil {
		switch {
		case local.Pinned != nil && remote.Pinned != nil && *local.Pinned != *remote.Pinned:
			resolved := *remote.Pinned
			if localWins {
				resolved = *local.Pinned
			}
			out.Pinned = resolved
			conflicts = append(conflicts, FieldConflict{
				Field: "pinned", Local: *local.Pinned, Remote: *remote.Pinned, Resolved: resolved,
			})
		case local.Pinned != nil:
			out.Pinned = *local.Pinned
		case remote.Pinned != nil:
			out.Pinned = *remote.Pinned
		}
	}
	return out, conflicts
}

func pickString(field, base string, local, remote *string, localWins bool) (string, *FieldConflict) {
	switch {
	case local != nil && remote != nil && *local != *remote:
		resolved := *remote
		if localWins {
			resolved = *local
		}
		return resolved, &FieldConflict{Field: field, Local: *local, Remote: *remote, Resolved: resolved}
	case local != nil:
		return *local, nil
	case remote != nil:
		return *remote, nil
	default:
		return base, nil
	}
}
