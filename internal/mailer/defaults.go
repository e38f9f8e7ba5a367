package mailer

import "github.com/docuflow/therenotify/internal/domain"

// DefaultTemplates returns the built-in email templates used to seed an
// empty template store.
func DefaultTemplates() []domain.EmailTemplate {
	return []domain.EmailTemplate{
		{
			Name:            "All Tasks",
			Description:     "All workflow tasks in one table with overdue rows highlighted",
			SubjectTemplate: `Workflow Report - {{formatDateTime .Now}}`,
			BodyTemplate:    allTasksBody,
			Default:         true,
		},
		{
			Name:            "Overdue Only",
			Description:     "Only overdue workflow tasks",
			SubjectTemplate: `Overdue Workflow Tasks - {{formatDateTime .Now}}`,
			BodyTemplate:    overdueOnlyBody,
		},
		{
			Name:            "Separated Sections",
			Description:     "Overdue and on-track tasks in separate tables",
			SubjectTemplate: `Workflow Summary - {{formatDateTime .Now}}`,
			BodyTemplate:    separatedSectionsBody,
		},
	}
}

const allTasksBody = `<!DOCTYPE html>
<html>
<head>
<style>
    body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
    .container { max-width: 800px; margin: 0 auto; padding: 20px; }
    h1 { color: #2c3e50; border-bottom: 2px solid #3498db; padding-bottom: 10px; }
    h2 { color: #34495e; margin-top: 30px; }
    table { width: 100%; border-collapse: collapse; margin: 20px 0; }
    th { background-color: #3498db; color: white; padding: 14px; text-align: left; }
    td { padding: 12px; border-bottom: 1px solid #eee; }
    tr.overdue { background-color: #ffe6e6; }
    tr.overdue td { color: #c0392b; }
    .overdue-badge { background-color: #e74c3c; color: white; padding: 3px 10px; border-radius: 12px; font-size: 11px; font-weight: bold; margin-left: 8px; }
    a { color: #3498db; text-decoration: none; }
    .footer { margin-top: 40px; padding-top: 20px; border-top: 1px solid #ddd; font-size: 12px; color: #7f8c8d; text-align: center; }
    .no-tasks { text-align: center; padding: 40px; color: #7f8c8d; font-style: italic; background: #f8f9fa; border-radius: 8px; }
</style>
</head>
<body>
<div class="container">
    <h1>Workflow Task Report</h1>

    <p>Hello {{.User.DisplayName}},</p>

    <p>The following workflow tasks have been assigned to you, or to a group you are a member of.
    Click on the task name to open and process the task.</p>

    {{if .Instances}}
    <table width="100%" cellpadding="0" cellspacing="0" border="0" style="margin: 20px 0; background-color: #667eea;">
        <tr>
            <td width="33%" align="center" style="padding: 15px; color: white;">
                <span style="font-size: 32px; font-weight: bold; display: block;">{{.InstanceCount}}</span>
                <span style="font-size: 12px; text-transform: uppercase;">Total Tasks</span>
            </td>
            <td width="33%" align="center" style="padding: 15px; color: #ff6b6b;">
                <span style="font-size: 32px; font-weight: bold; display: block;">{{.OverdueCount}}</span>
                <span style="font-size: 12px; text-transform: uppercase; color: white;">Overdue</span>
            </td>
            <td width="33%" align="center" style="padding: 15px; color: #51cf66;">
                <span style="font-size: 32px; font-weight: bold; display: block;">{{.NotOverdueCount}}</span>
                <span style="font-size: 12px; text-transform: uppercase; color: white;">On Track</span>
            </td>
        </tr>
    </table>

    <h2>All Workflow Tasks ({{.InstanceCount}})</h2>
    <table>
        <thead>
            <tr><th>Task</th><th>Workflow</th><th>Details</th><th>Started</th><th>Due Date</th></tr>
        </thead>
        <tbody>
            {{range .Instances}}
            <tr{{if .Overdue}} class="overdue"{{end}}>
                <td>
                    <a href="{{.TWAURL}}">{{.TaskName}}</a>
                    {{if .Overdue}}<span class="overdue-badge">OVERDUE</span>{{end}}
                </td>
                <td>{{.ProcessName}}</td>
                <td>{{with .IndexDataString}}{{.}}{{else}}-{{end}}</td>
                <td>{{formatDate .TaskStart}}</td>
                <td>{{formatDate .TaskDue}}</td>
            </tr>
            {{end}}
        </tbody>
    </table>
    {{else}}
    <div class="no-tasks">No workflow tasks found.</div>
    {{end}}

    <div class="footer">
        <p>Generated at {{formatDateTime .Now}} &bull; Server Timezone: {{.Timezone}}</p>
        <p><small>Do not reply to this email.</small></p>
    </div>
</div>
</body>
</html>`

const overdueOnlyBody = `<!DOCTYPE html>
<html>
<head>
<style>
    body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
    .container { max-width: 800px; margin: 0 auto; padding: 20px; }
    h1 { color: #c0392b; border-bottom: 3px solid #e74c3c; padding-bottom: 10px; }
    table { width: 100%; border-collapse: collapse; margin: 20px 0; }
    th { background-color: #e74c3c; color: white; padding: 14px; text-align: left; }
    td { padding: 12px; border-bottom: 1px solid #f5c6cb; background-color: #fff5f5; }
    a { color: #c0392b; text-decoration: none; font-weight: 600; }
    .footer { margin-top: 40px; padding-top: 20px; border-top: 1px solid #ddd; font-size: 12px; color: #7f8c8d; text-align: center; }
    .no-tasks { text-align: center; padding: 30px; color: #27ae60; background: #d4edda; border-radius: 8px; }
    .on-track-info { text-align: center; padding: 15px; color: #155724; background: #d4edda; border-radius: 8px; margin: 15px 0; }
</style>
</head>
<body>
<div class="container">
    <h1>Overdue Workflow Tasks</h1>

    <p>Hello {{.User.DisplayName}},</p>

    {{if .Overdue}}
    <table width="100%" cellpadding="0" cellspacing="0" border="0" style="margin: 20px 0; background-color: #e74c3c;">
        <tr>
            <td style="padding: 20px; text-align: center; color: white;">
                <span style="font-size: 48px; font-weight: bold; display: block;">{{.OverdueCount}}</span>
                <span style="font-size: 14px; text-transform: uppercase;">Overdue Tasks Requiring Attention</span>
            </td>
        </tr>
    </table>

    <table width="100%" cellpadding="0" cellspacing="0" border="0" style="margin: 20px 0;">
        <tr>
            <td style="background-color: #fff3cd; border-left: 5px solid #ffc107; padding: 15px 20px;">
                <strong>Action Required:</strong> You have {{.OverdueCount}} overdue workflow task(s) that require immediate attention.
            </td>
        </tr>
    </table>

    {{if .NotOverdueCount}}
    <div class="on-track-info">
        <strong>Good news:</strong> You also have {{.NotOverdueCount}} on-track task(s) in good standing.
    </div>
    {{end}}

    <table>
        <thead>
            <tr><th>Task</th><th>Workflow</th><th>Details</th><th>Started</th><th>Due Date</th></tr>
        </thead>
        <tbody>
            {{range .Overdue}}
            <tr>
                <td><a href="{{.TWAURL}}">{{.TaskName}}</a></td>
                <td>{{.ProcessName}}</td>
                <td>{{with .IndexDataString}}{{.}}{{else}}-{{end}}</td>
                <td>{{formatDate .TaskStart}}</td>
                <td>{{formatDate .TaskDue}}</td>
            </tr>
            {{end}}
        </tbody>
    </table>
    {{else}}
    <div class="no-tasks">
        <strong>No overdue tasks. Great job!</strong><br>
        {{if .NotOverdueCount}}
        <small>You have {{.NotOverdueCount}} on-track task(s) in good standing.</small>
        {{else}}
        <small>You have no workflow tasks assigned.</small>
        {{end}}
    </div>
    {{end}}

    <div class="footer">
        <p>Generated at {{formatDateTime .Now}} &bull; Server Timezone: {{.Timezone}}</p>
        <p><small>Do not reply to this email.</small></p>
    </div>
</div>
</body>
</html>`

const separatedSectionsBody = `<!DOCTYPE html>
<html>
<head>
<style>
    body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
    .container { max-width: 800px; margin: 0 auto; padding: 20px; }
    h1 { color: #2c3e50; border-bottom: 2px solid #3498db; padding-bottom: 10px; }
    table { width: 100%; border-collapse: collapse; margin: 15px 0; }
    th { background-color: #34495e; color: white; padding: 12px; text-align: left; }
    td { padding: 12px; border-bottom: 1px solid #ecf0f1; }
    tr.overdue td { background-color: #ffe6e6; color: #c0392b; }
    a { color: #3498db; text-decoration: none; }
    .footer { margin-top: 40px; padding-top: 20px; border-top: 1px solid #ddd; font-size: 12px; color: #7f8c8d; text-align: center; }
    .empty { color: #95a5a6; font-style: italic; padding: 30px; text-align: center; background: #f8f9fa; border-radius: 8px; }
</style>
</head>
<body>
<div class="container">
    <h1>Workflow Task Summary</h1>

    <p>Hello {{.User.DisplayName}},</p>

    <table width="100%" cellpadding="0" cellspacing="0" border="0" style="margin: 20px 0; background-color: #667eea;">
        <tr>
            <td width="33%" align="center" style="padding: 15px; color: white;">
                <span style="font-size: 36px; font-weight: bold; display: block;">{{.InstanceCount}}</span>
                <span style="font-size: 12px; text-transform: uppercase;">Total Tasks</span>
            </td>
            <td width="33%" align="center" style="padding: 15px; color: #ff6b6b;">
                <span style="font-size: 36px; font-weight: bold; display: block;">{{.OverdueCount}}</span>
                <span style="font-size: 12px; text-transform: uppercase; color: white;">Overdue</span>
            </td>
            <td width="33%" align="center" style="padding: 15px; color: #51cf66;">
                <span style="font-size: 36px; font-weight: bold; display: block;">{{.NotOverdueCount}}</span>
                <span style="font-size: 12px; text-transform: uppercase; color: white;">On Track</span>
            </td>
        </tr>
    </table>

    {{if .Overdue}}
    <table width="100%" cellpadding="0" cellspacing="0" border="0" style="margin-top: 25px;">
        <tr>
            <td style="background-color: #fff5f5; border-left: 4px solid #e74c3c; padding: 15px;">
                <div style="font-size: 18px; font-weight: 600; color: #c0392b;">Overdue Tasks</div>
                <div style="font-size: 14px; color: #7f8c8d;">{{.OverdueCount}} task(s) requiring immediate attention</div>
            </td>
        </tr>
    </table>
    <table>
        <thead>
            <tr>
                <th style="background-color: #c0392b;">Task</th>
                <th style="background-color: #c0392b;">Workflow</th>
                <th style="background-color: #c0392b;">Details</th>
                <th style="background-color: #c0392b;">Started</th>
                <th style="background-color: #c0392b;">Due Date</th>
            </tr>
        </thead>
        <tbody>
            {{range .Overdue}}
            <tr class="overdue">
                <td><a href="{{.TWAURL}}" style="color: #c0392b;">{{.TaskName}}</a></td>
                <td>{{.ProcessName}}</td>
                <td>{{with .IndexDataString}}{{.}}{{else}}-{{end}}</td>
                <td>{{formatDate .TaskStart}}</td>
                <td>{{formatDate .TaskDue}}</td>
            </tr>
            {{end}}
        </tbody>
    </table>
    {{end}}

    {{if .NotOverdue}}
    <table width="100%" cellpadding="0" cellspacing="0" border="0" style="margin-top: 25px;">
        <tr>
            <td style="background-color: #f8f9fa; border-left: 4px solid #3498db; padding: 15px;">
                <div style="font-size: 18px; font-weight: 600; color: #2c3e50;">On Track Tasks</div>
                <div style="font-size: 14px; color: #7f8c8d;">{{.NotOverdueCount}} task(s) in good standing</div>
            </td>
        </tr>
    </table>
    <table>
        <thead>
            <tr><th>Task</th><th>Workflow</th><th>Details</th><th>Started</th><th>Due Date</th></tr>
        </thead>
        <tbody>
            {{range .NotOverdue}}
            <tr>
                <td><a href="{{.TWAURL}}">{{.TaskName}}</a></td>
                <td>{{.ProcessName}}</td>
                <td>{{with .IndexDataString}}{{.}}{{else}}-{{end}}</td>
                <td>{{formatDate .TaskStart}}</td>
                <td>{{formatDate .TaskDue}}</td>
            </tr>
            {{end}}
        </tbody>
    </table>
    {{end}}

    {{if not .Instances}}
    <p class="empty">No workflow tasks found.</p>
    {{end}}

    <div class="footer">
        <p>Generated at {{formatDateTime .Now}} &bull; Server Timezone: {{.Timezone}}</p>
        <p><small>Do not reply to this email.</small></p>
    </div>
</div>
</body>
</html>`
