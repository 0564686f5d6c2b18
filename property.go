package notion2ics

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MaxRelationFetches bounds the concurrent lookups for one relation property.
const MaxRelationFetches = 3

var propertySymbols = map[PropertyKind]string{
	KindNumber:      "🔢",
	KindRichText:    "🇹",
	KindURL:         "ℹ️",
	KindMultiSelect: "➡️",
	KindSelect:      "▶️",
	KindPeople:      "🚹",
	KindStatus:      "⏺️",
	KindRelation:    "↗️",
}

// FormatProperty renders one property as a description pair. It reports
// false for kinds that are not displayed and for empty values.
func (p *Processor) FormatProperty(ctx context.Context, name string, property Property) (Pair, bool) {
	symbol, ok := propertySymbols[property.Kind]
	if !ok {
		return Pair{}, false
	}

	var value string

	switch property.Kind {
	case KindNumber:
		if property.Number != nil {
			value = strconv.FormatFloat(*property.Number, 'f', -1, 64)
		}
	case KindRichText:
		value = strings.Join(property.Text, " ")
	case KindURL:
		if property.URL != nil {
			value = *property.URL
		}
	case KindMultiSelect:
		var s []string
		for _, opt := range property.MultiSelect {
			s = append(s, opt.Name)
		}
		value = strings.Join(s, " ")
	case KindSelect:
		if property.Select != nil {
			value = property.Select.Name
		}
	case KindPeople:
		var s []string
		for _, person := range property.People {
			if person.Name != nil && *person.Name != "" {
				s = append(s, *person.Name)
			} else {
				s = append(s, "NoName")
			}
		}
		value = strings.Join(s, " ")
	case KindStatus:
		if property.Status != nil {
			value = property.Status.Name
		}
	case KindRelation:
		value = p.resolveRelations(ctx, name, property.Relation)
	}

	if value == "" {
		return Pair{}, false
	}

	return Pair{Label: symbol + " " + name, Value: value}, true
}

// resolveRelations fetches the referenced records, at most MaxRelationFetches
// at a time, and returns the title of the last one, in source order, that
// resolved.
func (p *Processor) resolveRelations(ctx context.Context, name string, ids []string) string {
	if p.Resolver == nil || len(ids) == 0 {
		return ""
	}

	titles := make([]string, len(ids))
	errs := make([]error, len(ids))

	var g errgroup.Group
	g.SetLimit(MaxRelationFetches)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			titles[i], errs[i] = p.Resolver.Resolve(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	var value string
	for i, id := range ids {
		if errs[i] != nil {
			p.logger().Warn("unable to resolve relation",
				zap.String("property", name),
				zap.String("relation", id),
				zap.Error(errs[i]),
			)
			continue
		}
		value = titles[i]
	}

	return value
}
