package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wolfman30/whatsapp-tour-booking/internal/catalog"
	"github.com/wolfman30/whatsapp-tour-booking/internal/messaging"
	"github.com/wolfman30/whatsapp-tour-booking/internal/nlu"
)

func (e *Engine) extract(ctx context.Context, t *turn, schema nlu.Schema) (nlu.Fields, error) {
	if t.interactive || t.input == "" {
		return nlu.Fields{}, nil
	}
	fields, err := e.extractor.Extract(ctx, t.input, schema)
	if err != nil {
		return nil, externalError("extractor", err)
	}
	return fields, nil
}

func (e *Engine) phrase(ctx context.Context, t *turn, style nlu.Style, vars map[string]any) (string, error) {
	text, err := e.generator.Generate(ctx, t.input, vars, style)
	if err != nil {
		return "", externalError("generator", err)
	}
	return text, nil
}

func (e *Engine) stepAskGuestName(ctx context.Context, t *turn) ([]messaging.Message, error) {
	fields, err := e.extract(ctx, t, nlu.SchemaGuestName)
	if err != nil {
		return nil, err
	}
	raw, ok := fields.Get(nlu.FieldGuestName)
	if !ok {
		prompt, err := e.phrase(ctx, t, nlu.StyleAskGuestName, nil)
		if err != nil {
			return nil, err
		}
		return []messaging.Message{messaging.Text(prompt)}, nil
	}
	name, err := ValidateGuestName(raw)
	if err != nil {
		return nil, err
	}
	t.sess.Data.GuestName = name
	return e.showCities(ctx, t, fmt.Sprintf("Nice to meet you, *%s*! 😊", name))
}

func (e *Engine) stepGreeting(ctx context.Context, t *turn) ([]messaging.Message, error) {
	lead := "👋 Welcome!"
	if name := t.sess.Data.GuestName; name != "" {
		lead = fmt.Sprintf("👋 Welcome back, *%s*!", name)
	}
	return e.showCities(ctx, t, lead)
}

func (e *Engine) stepCityList(ctx context.Context, t *turn) ([]messaging.Message, error) {
	return e.showCities(ctx, t, "")
}

// showCities lists the company's cities and waits for a choice.
func (e *Engine) showCities(ctx context.Context, t *turn, lead string) ([]messaging.Message, error) {
	cities, err := e.catalog.Cities(ctx, t.sess.CompanyID)
	if err != nil {
		return nil, externalError("catalog", err)
	}
	if len(cities) == 0 {
		t.sess.State = StateCityList
		return []messaging.Message{messaging.Text(withLead(lead,
			"Sorry, there are no tours open for booking right now. Please check back soon."))}, nil
	}
	t.sess.State = StateCitySelect
	return []messaging.Message{cityListMessage(withLead(lead, "🏙️ Which city would you like to explore?"), cities)}, nil
}

func (e *Engine) cityCorrection(ctx context.Context, t *turn, cause error, prompt string) error {
	cities, err := e.catalog.Cities(ctx, t.sess.CompanyID)
	if err != nil {
		return externalError("catalog", err)
	}
	return inputError(cause, cityListMessage(prompt, cities))
}

func (e *Engine) stepCitySelect(ctx context.Context, t *turn) ([]messaging.Message, error) {
	city, ok := strings.CutPrefix(t.input, tokenCityPrefix)
	if !ok {
		fields, err := e.extract(ctx, t, nlu.SchemaCity)
		if err != nil {
			return nil, err
		}
		city, _ = fields.Get(nlu.FieldCity)
	}
	city = catalog.NormalizeCity(city)
	if city == "" {
		return nil, e.cityCorrection(ctx, t, ErrUnrecognized, "Please select a valid city from the list.")
	}

	pkgs, err := e.catalog.PackagesByCity(ctx, t.sess.CompanyID, city)
	if err != nil {
		return nil, externalError("catalog", err)
	}
	if len(pkgs) == 0 {
		return nil, e.cityCorrection(ctx, t, ErrUnrecognized, fmt.Sprintf(
			"Currently, there are no packages available for %s. Kindly select a different city to continue.", city))
	}
	e.setPackages(t, city, pkgs)
	return []messaging.Message{packageListMessage(packagesBody(city), t.sess.Data.Packages, t.currency(e.defaultCurrency))}, nil
}

func (e *Engine) setPackages(t *turn, city string, pkgs []catalog.Package) {
	d := &t.sess.Data
	d.City = city
	d.Packages = make([]PackageRef, 0, len(pkgs))
	for _, p := range pkgs {
		d.Packages = append(d.Packages, refFor(p))
	}
	d.Package = nil
	t.sess.State = StatePackageList
}

// showPackages refreshes the city's package list. A city that ran out of
// packages sends the guest back to the city list.
func (e *Engine) showPackages(ctx context.Context, t *turn, city, lead string) ([]messaging.Message, error) {
	pkgs, err := e.catalog.PackagesByCity(ctx, t.sess.CompanyID, city)
	if err != nil {
		return nil, externalError("catalog", err)
	}
	if len(pkgs) == 0 {
		t.sess.Data.resetTo(StateCityList)
		return e.showCities(ctx, t, withLead(lead, fmt.Sprintf("Currently, there are no packages available for %s.", city)))
	}
	e.setPackages(t, city, pkgs)
	return []messaging.Message{packageListMessage(withLead(lead, packagesBody(city)), t.sess.Data.Packages, t.currency(e.defaultCurrency))}, nil
}

// cachedPackage resolves a PKG_<id> token against the list the guest was shown.
func (t *turn) cachedPackage() (PackageRef, bool) {
	raw, ok := strings.CutPrefix(t.input, tokenPackagePrefix)
	if !ok {
		return PackageRef{}, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return PackageRef{}, false
	}
	for _, p := range t.sess.Data.Packages {
		if p.ID == id {
			return p, true
		}
	}
	return PackageRef{}, false
}

func (e *Engine) stepPackageList(ctx context.Context, t *turn) ([]messaging.Message, error) {
	ref, ok := t.cachedPackage()
	if !ok {
		return nil, inputError(ErrUnrecognized, packageListMessage(
			"Please select a valid package from the list.", t.sess.Data.Packages, t.currency(e.defaultCurrency)))
	}
	return e.showPackageDetail(ctx, t, ref.ID)
}

// loadPackage re-reads a package; one that was deactivated meanwhile resets the list.
func (e *Engine) loadPackage(ctx context.Context, t *turn, id int64) (catalog.Package, error) {
	p, err := e.catalog.Package(ctx, t.sess.CompanyID, id)
	if errors.Is(err, catalog.ErrPackageNotFound) {
		return catalog.Package{}, &DataIntegrityError{ResetTo: StatePackageList, Reason: fmt.Sprintf("package %d no longer active", id)}
	}
	if err != nil {
		return catalog.Package{}, externalError("catalog", err)
	}
	return p, nil
}

func (e *Engine) showPackageDetail(ctx context.Context, t *turn, id int64) ([]messaging.Message, error) {
	p, err := e.loadPackage(ctx, t, id)
	if err != nil {
		return nil, err
	}
	ref := refFor(p)
	t.sess.Data.Package = &ref
	t.sess.State = StatePackageDetail
	return []messaging.Message{packageDetailMessage(p, t.currency(e.defaultCurrency))}, nil
}

func (e *Engine) stepPackageDetail(ctx context.Context, t *turn) ([]messaging.Message, error) {
	d := &t.sess.Data
	switch t.input {
	case tokenBackPackage:
		d.Package = nil
		return e.showPackages(ctx, t, d.City, "")
	case tokenBookPackage:
		if d.Package == nil {
			return nil, &DataIntegrityError{ResetTo: StatePackageList, Reason: "no package under view"}
		}
		p, err := e.loadPackage(ctx, t, d.Package.ID)
		if err != nil {
			return nil, err
		}
		ref := refFor(p)
		d.Package = &ref
		d.TravelDate = ""
		d.clearTrip()
		t.sess.State = StateAskTravelDate
		return []messaging.Message{travelDateMessage(travelDateBody(p.Title))}, nil
	}
	if ref, ok := t.cachedPackage(); ok {
		return e.showPackageDetail(ctx, t, ref.ID)
	}
	return nil, inputError(ErrUnrecognized, packageDetailCorrection())
}
