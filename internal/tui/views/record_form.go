package views

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rivo/tview"
	"github.com/tanklog/tanklog/internal/store"
)

// RecordForm is the add-a-fill-up form.
type RecordForm struct {
	*tview.Form
	onSubmit func(store.RecordFields)
	onCancel func()
}

// NewRecordForm creates the form with empty fields.
func NewRecordForm() *RecordForm {
	f := &RecordForm{Form: tview.NewForm()}
	f.SetBorder(true).SetTitle(" New fill-up ")

	f.AddInputField("Date", "", 12, nil, nil)
	f.AddInputField("Amount paid", "", 12, tview.InputFieldFloat, nil)
	f.AddInputField("Odometer", "", 12, tview.InputFieldFloat, nil)
	f.AddInputField("Fuel filled", "", 12, tview.InputFieldFloat, nil)
	f.AddInputField("Station", "", 24, nil, nil)

	f.AddButton("Save", func() {
		fields, err := f.collect()
		if err != nil {
			f.SetTitle(fmt.Sprintf(" New fill-up | %v ", err))
			return
		}
		if f.onSubmit != nil {
			f.onSubmit(fields)
		}
	})
	f.AddButton("Cancel", func() {
		if f.onCancel != nil {
			f.onCancel()
		}
	})
	return f
}

// SetOnSubmit sets the callback invoked with validated fields.
func (f *RecordForm) SetOnSubmit(fn func(store.RecordFields)) {
	f.onSubmit = fn
}

// SetOnCancel sets the callback for the cancel button.
func (f *RecordForm) SetOnCancel(fn func()) {
	f.onCancel = fn
}

// Reset clears the form, defaulting the date to today.
func (f *RecordForm) Reset() {
	f.field(0).SetText(time.Now().Format("2006-01-02"))
	for i := 1; i < 4; i++ {
		f.field(i).SetText("")
	}
	f.field(4).SetText("")
	f.SetTitle(" New fill-up ")
	f.SetFocus(0)
}

func (f *RecordForm) field(i int) *tview.InputField {
	return f.GetFormItem(i).(*tview.InputField)
}

func (f *RecordForm) collect() (store.RecordFields, error) {
	var fields store.RecordFields

	fields.Date = f.field(0).GetText()
	if _, err := time.Parse("2006-01-02", fields.Date); err != nil {
		return fields, fmt.Errorf("date must be YYYY-MM-DD")
	}
	for i, dst := range []*float64{&fields.AmountPaid, &fields.Odometer, &fields.FuelFilled} {
		v, err := strconv.ParseFloat(f.field(i+1).GetText(), 64)
		if err != nil || v <= 0 {
			return fields, fmt.Errorf("%s must be a positive number", f.GetFormItem(i+1).GetLabel())
		}
		*dst = v
	}
	fields.Station = f.field(4).GetText()
	return fields, nil
}
