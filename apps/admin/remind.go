package main

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/evalua/core"
	"github.com/trezcool/evalua/services/spreadsheet"
)

const reminderTemplate = "followup_reminder"

var errNoRecipients = errors.New("no reminder recipients configured")

type (
	reminderItem struct {
		StaffName string
		ThemeName string
		DueDate   string
		Overdue   bool
	}

	reminderData struct {
		Items []reminderItem
		Until string
	}
)

// remindFollowUps emails the follow-ups due within `withinDays` days to the reminder recipients, with the
// spreadsheet of the list attached.
func (cli *commandLine) remindFollowUps(withinDays int) error {
	if len(cli.conf.ReminderRecipients) == 0 {
		return errNoRecipients
	}

	due, err := cli.dueFollowUps(context.Background(), withinDays)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		fmt.Fprintln(cli.out, "no follow-up due")
		return nil
	}

	data := reminderData{
		Items: make([]reminderItem, 0, len(due)),
		Until: core.TruncateDay(timeNow()).AddDate(0, 0, withinDays).Format(core.DateLayout),
	}
	for _, fu := range due {
		data.Items = append(data.Items, reminderItem{
			StaffName: fu.StaffName,
			ThemeName: fu.ThemeName,
			DueDate:   fu.DueDate.Format(core.DateLayout),
			Overdue:   fu.Overdue,
		})
	}

	var buf bytes.Buffer
	if err := spreadsheet.WriteFollowUps(&buf, due); err != nil {
		return err
	}

	msg := &core.EmailMessage{
		To:           cli.conf.ReminderRecipients,
		Subject:      fmt.Sprintf("%d follow-up evaluation(s) due", len(due)),
		TemplateName: reminderTemplate,
		TemplateData: data,
	}
	filename := "followups-" + core.TruncateDay(timeNow()).Format("20060102") + ".xlsx"
	if err := msg.Attach(&buf, filename, spreadsheet.ContentType); err != nil {
		return err
	}

	cli.mailSvc.SendMessages(msg)
	cli.mailSvc.Wait()
	fmt.Fprintf(cli.out, "reminder sent for %d follow-up(s)\n", len(due))
	return nil
}

