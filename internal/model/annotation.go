package model

import "time"

// Vec3 is a 3D point in scene coordinates
type Vec3 struct {
	X float64 `json:"x" bson:"x"`
	Y float64 `json:"y" bson:"y"`
	Z float64 `json:"z" bson:"z"`
}

// Annotation is a text note anchored to a point in the shared scene.
// Only the author may mutate or delete it; the conflict engine enforces this.
type Annotation struct {
	ID        string    `json:"id" bson:"_id"`
	SessionID string    `json:"sessionId" bson:"sessionId"`
	AuthorID  string    `json:"authorId" bson:"authorId"`
	Content   string    `json:"content" bson:"content"`
	Position  Vec3      `json:"position" bson:"position"`
	Target    string    `json:"target,omitempty" bson:"target,omitempty"` // structural element reference, e.g. a residue id
	Color     string    `json:"color" bson:"color"`
	Pinned    bool      `json:"pinned" bson:"pinned"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// AnnotationPatch is a partial annotation edit. Nil fields are untouched,
// which is what lets the merge strategy reason field by field.
type AnnotationPatch struct {
	Content  *string `json:"content,omitempty"`
	Position *Vec3   `json:"position,omitempty"`
	Target   *string `json:"target,omitempty"`
	Color    *string `json:"color,omitempty"`
	Pinned   *bool   `json:"pinned,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p AnnotationPatch) IsEmpty() bool {
	return p.Content == nil && p.Position == nil && p.Target == nil && p.Color == nil && p.Pinned == nil
}

// Apply overlays the patch onto a copy of the annotation and returns it
func (p AnnotationPatch) Apply(a Annotation) Annotation {
	if p.Content != nil {
		a.Content = *p.Content
	}
	if p.Position != nil {
		a.Position = *p.Position
	}
	if p.Target != nil {
		a.Target = *p.Target
	}
	if p.Color != nil {
		a.Color = *p.Color
	}
	if p.Pinned != nil {
		a.Pinned = *p.Pinned
	}
	return a
}

// PatchFromAnnotation expresses a full annotation as a patch touching every field
func PatchFromAnnotation(a Annotation) AnnotationPatch {
	content, target, color := a.Content, a.Target, a.Color
	pos, pinned := a.Position, a.Pinned
	return AnnotationPatch{
		Content:  &content,
		Position: &pos,
		Target:   &target,
		Color:    &color,
		Pinned:   &pinned,
	}
}
